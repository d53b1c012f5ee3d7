package tarshard

import (
	"github.com/spf13/viper"
)

func loadConfig() {
	viper.SetConfigName("tarshardrc")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.tarshard")

	setupDefaults()

	viper.ReadInConfig()

	viper.SetEnvPrefix("tarshard")
	viper.AutomaticEnv()
}

func setupDefaults() {
	defaultSettings := map[string]interface{}{
		"shuffle_buffer": 2000,
		"show_splits":    false,
		"rank":           -1, // Distributed context is unset by default
		"world_size":     0,
		"shard_pattern":  "eng_zh-%06d.tar",
		"shard_maxsize":  "6GB",
		"shard_maxcount": 2000,
		"key_digits":     7,
	}
	for key, value := range defaultSettings {
		viper.SetDefault(key, value)
	}

	aliases := map[string]string{
		"show_splits":    "v",
		"shard_maxcount": "maxcount",
		"shard_maxsize":  "maxsize",
	}
	for key, alias := range aliases {
		viper.RegisterAlias(alias, key)
	}
}
