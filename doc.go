/*Package tarshard prepares and consumes sharded tar datasets for distributed
training.

A dataset is a set of tar shards, each holding records whose entries share a
key prefix ("0000042.text", "0000042.embedding"). Writer converts a
line-delimited text+embedding file into such shards, rotating shards by
record count and size.

Dataset streams the shards back. Each epoch enumerates the shard URLs from a
brace pattern like "s3://bucket/eng_zh-{000000..000127}.tar", keeps the
shards assigned to this node (by rank and world size) and to this worker,
then passes records through a bounded shuffle buffer, decodes the requested
fields into a tuple, applies each field's process function and converts the
first element to text.

Shards are striped across nodes and workers by position, so every shard is
read by exactly one (node, worker) pair and the assignment is the same on
every call with the same inputs. Loader runs several workers in-process and
merges their samples.
*/
package tarshard
