package tagfile

import "github.com/linkedin/goavro/v2"

// tagSchema is the Avro record schema for one serialized tag, mirroring
// pkg/metricstore/avroHelper.go's use of goavro for the metric checkpoint
// container: a flat record of the same two fields tagio.Tag carries.
const tagSchema = `
{
  "type": "record",
  "name": "Tag",
  "fields": [
    {"name": "time", "type": "long"},
    {"name": "channel", "type": "int"}
  ]
}`

func newTagCodec() (*goavro.Codec, error) {
	return goavro.NewCodec(tagSchema)
}

func tagRecord(time int64, channel uint8) map[string]any {
	return map[string]any{
		"time":    time,
		"channel": int32(channel),
	}
}
