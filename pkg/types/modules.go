package types

type Platform string

const (
	Azure Platform = "azure"
	Entra Platform = "entra"
)

func GetPlatformFromString(platform string) Platform {
	switch platform {
	case "azure":
		return Azure
	case "entra":
		return Entra
	default:
		return ""
	}
}

type Metadata struct {
	Id          string
	Name        string
	Description string
	Platform    Platform
	Category    string
	Authors     []string
	References  []string
}

// Row is a single output row produced by an overview module. Keys are
// column names; the owning module's Columns() fixes their order in the
// exported file.
type Row map[string]string

// RowSink receives rows as they are produced, so the consumer can append
// incrementally without buffering a whole run.
type RowSink interface {
	WriteRow(row Row) error
	Close() error
}

// SinkFactory opens one sink per module per run.
type SinkFactory func(meta Metadata, columns []string) (RowSink, error)
