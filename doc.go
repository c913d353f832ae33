/*
Package blk decodes and encodes the binary "block" configuration format
used by the Dagor engine to store hierarchical typed data (entities,
missions, vehicle definitions and similar). A decoded file is an ordered
tree of named blocks and named, typed fields.

Data Structure Documentation

File

A file starts with a single magic byte selecting the format variant,
followed by the variant body. Compressed variants declare the uncompressed
body size and wrap the body in a zstd frame.

    Uncompressed file:
    +------------------+---------------------+
    | variant (1 byte) |  fat or slim body   |
    +------------------+---------------------+

    Compressed file:
    +------------------+----------------------------+------------+
    | variant (1 byte) | uncompressed size (varint) | zstd frame |
    +------------------+----------------------------+------------+

Fat body

Fat files carry their own name table. Counts and sizes are unsigned
varints, multi-byte integers are little-endian.

    +------------+----------------+-------------+-------------+-------------+-----------+-----------+---------------+---------------+
    | name count | name data size | name region | block count | field count | data size | data blob | field records | block records |
    +------------+----------------+-------------+-------------+-------------+-----------+-----------+---------------+---------------+

    Name region entry:          Field record (8 bytes):
    +--------------+-------+    +----------------------+--------------+-------------------+
    | len (varint) | bytes |    | name index (3 bytes) | tag (1 byte) | payload (4 bytes) |
    +--------------+-------+    +----------------------+--------------+-------------------+

    Block record:
    +-------------------+----------------------+----------------------+----------------------------------------+
    | name ref (varint) | field count (varint) | child count (varint) | first child (varint, if child count>0) |
    +-------------------+----------------------+----------------------+----------------------------------------+

A block record with name ref 0 is the unnamed root; any other ref is the
name-table index plus one. Field records are claimed by blocks in record
order, child blocks are claimed via the explicit first-child/count range.

Slim body

Slim files share one external name table (see NameMap) across many files
and store every name index bit-packed with the minimal width able to
address the table, w = ceil(log2(N)) bits, most significant bit first.

    +-------------+-------------+-----------+-----------+-------------------+---------------+-------------------+---------------+
    | block count | field count | data size | data blob | field name stream | field records | block name stream | block records |
    +-------------+-------------+-----------+-----------+-------------------+---------------+-------------------+---------------+

The field name stream holds field-count w-bit indices, the block name
stream one presence bit per block followed by a w-bit index when set; both
streams are zero-padded to a byte boundary. Field records shrink to the
tag byte and the 4-byte payload, block records lose the name ref.

Values

Small values (Int, Float, Bool, Color) live inline in the 4-byte payload.
Wider values occupy the data blob at the offset given by the payload.
Strings reference either the blob or, in slim files with the payload's
top bit set, an entry of the shared name table.
*/
package blk
