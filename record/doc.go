/*
Package record implements the binary format of a single key/value record
in an append-only log.

Layout (all integers little-endian):

	+----------+---------+---------+-----------+-------------+
	| checksum | key_len | val_len | key       | value       |
	| u32      | u32     | u32     | key_len   | val_len     |
	+----------+---------+---------+-----------+-------------+

checksum is CRC-32 (IEEE) of key followed by value.

A log is a plain concatenation of records, without a file header.
Decode returns *EndOfStreamError when the reader ends early. A clean end
(no bytes of the next record were read) is how readers of a log find its end.
*/
package record
