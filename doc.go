/*
Package sstable reads Cassandra-style 'oa' format SSTables: immutable,
sorted, schema-typed table snapshots split across component files in one
directory, named "<generation>-big-<Component>".

	Components:
	  Data.db             partitions and rows
	  Index.db            partition key -> Data.db position
	  Summary.db          sampled Index.db entries
	  Filter.db           bloom filter over partition keys
	  CompressionInfo.db  chunk map, when Data.db is compressed
	  Statistics.db       table-level metadata
	  Digest.crc32        CRC32 of the whole Data.db file
	  TOC.txt             component manifest

Only Data.db is required; every other component degrades gracefully when
absent. All offsets exchanged between components refer to uncompressed
("logical") Data.db space, which begins after the raw file header.

Data Structure Documentation

# Data.db

	File layout:
	+-----------------+--------------+-------------+-------+
	| magic (8 bytes) | version "oa" | partition 1 |  ...  |
	+-----------------+--------------+-------------+-------+

	Partition:
	+--------------------+-----------+---------------------+----------------------------+--------+-------------------+
	| key length (uvint) | key bytes | deleted at (svint)  | local delete time (svint)  | rows.. | end flag (0x00)   |
	+--------------------+-----------+---------------------+----------------------------+--------+-------------------+

	Row:
	+--------------+---------------------+-------------------+----------------+--------------------+---------+
	| flags (byte) | clustering values   | timestamp (svint) | ttl (optional) | cell count (uvint) | cells.. |
	+--------------+---------------------+-------------------+----------------+--------------------+---------+

Row flags combine 0x01 (row), 0x02 (static row, no clustering values),
0x04 (row tombstone) and 0x08 (TTL fields present). Cell values are
svint-framed; a length of -1 encodes null.

# Variable-length integers

Unsigned vints store their total length in the count of leading one bits
of the first byte (1 to 9 bytes total); signed vints apply zigzag first.
Encoders always emit the minimal length, decoders accept over-long forms.

# Compression

A compressed Data.db stores fixed-size uncompressed chunks, each followed
by a big-endian CRC32-C trailer over the compressed bytes. Chunk file
positions live in CompressionInfo.db.

	Chunk:
	+------------------+-------------------+
	| compressed bytes | crc32c (4 bytes)  |
	+------------------+-------------------+

Values decode against a TableSchema, loaded from JSON, which resolves
every column and user-defined type up front. Decoded values come back as
the Value tagged union; cell and row liveness (tombstones, TTL expiry) is
resolved at read time against the Reader clock.
*/
package sstable
