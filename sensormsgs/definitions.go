package sensormsgs

// Definition is the text and checksum a publisher stores in a connection header.
type Definition struct {
	Type   string
	MD5Sum string
	Text   string
}

const headerDefinition = `
================================================================================
MSG: std_msgs/Header
# Standard metadata for higher-level stamped data types.
uint32 seq
time stamp
string frame_id
`

var definitions = map[string]Definition{
	TypeImage: {
		Type:   TypeImage,
		MD5Sum: "060021388200f6f0f447d0fcd9c64743",
		Text: `# This message contains an uncompressed image
Header header        # Header timestamp should be acquisition time of image
uint32 height         # image height, that is, number of rows
uint32 width          # image width, that is, number of columns
string encoding       # Encoding of pixels -- channel meaning, ordering, size
uint8 is_bigendian    # is this data bigendian?
uint32 step           # Full row length in bytes
uint8[] data          # actual matrix data, size is (step * rows)
` + headerDefinition,
	},
	TypeCompressedImage: {
		Type:   TypeCompressedImage,
		MD5Sum: "8f7a12909da2c9d3332d540a0977563f",
		Text: `# This message contains a compressed image
Header header        # Header timestamp should be acquisition time of image
string format        # Specifies the format of the data
uint8[] data         # Compressed image buffer
` + headerDefinition,
	},
	TypePointCloud2: {
		Type:   TypePointCloud2,
		MD5Sum: "1158d486dd51d683ce2f1be655c3c181",
		Text: `# This message holds a collection of N-dimensional points
Header header
uint32 height
uint32 width
PointField[] fields
bool    is_bigendian # Is this data bigendian?
uint32  point_step   # Length of a point in bytes
uint32  row_step     # Length of a row in bytes
uint8[] data         # Actual point data, size is (row_step*height)
bool is_dense        # True if there are no invalid points
` + headerDefinition + `
================================================================================
MSG: sensor_msgs/PointField
uint8 INT8    = 1
uint8 UINT8   = 2
uint8 INT16   = 3
uint8 UINT16  = 4
uint8 INT32   = 5
uint8 UINT32  = 6
uint8 FLOAT32 = 7
uint8 FLOAT64 = 8

string name      # Name of field
uint32 offset    # Offset from start of point struct
uint8  datatype  # Datatype enumeration, see above
uint32 count     # How many elements in the field
`,
	},
}

// DefinitionOf returns the canonical definition of msgType.
func DefinitionOf(msgType string) (Definition, bool) {
	def, ok := definitions[msgType]
	return def, ok
}
