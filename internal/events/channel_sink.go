package events

// ChannelSink fans event callbacks out onto buffered channels. A slow
// or absent consumer never blocks the pipeline: sends are best-effort
// and drop the event when the channel is full.
type ChannelSink struct {
	FileChanges       chan FileChange
	FileUploadStatuses chan FileUploadStatus
	Uploads           chan string
	UploadSuccesses   chan string
	UploadFailures    chan FileUploadStatus
}

// NewChannelSink returns a ChannelSink with channels of the given
// buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{
		FileChanges:        make(chan FileChange, buffer),
		FileUploadStatuses: make(chan FileUploadStatus, buffer),
		Uploads:            make(chan string, buffer),
		UploadSuccesses:    make(chan string, buffer),
		UploadFailures:     make(chan FileUploadStatus, buffer),
	}
}

func (s *ChannelSink) FileChange(evt FileChange) {
	select {
	case s.FileChanges <- evt:
	default:
	}
}

func (s *ChannelSink) FileUploadStatus(evt FileUploadStatus) {
	select {
	case s.FileUploadStatuses <- evt:
	default:
	}
}

func (s *ChannelSink) Uploaded(relativePath string) {
	select {
	case s.Uploads <- relativePath:
	default:
	}
}

func (s *ChannelSink) UploadSuccess(relativePath string) {
	select {
	case s.UploadSuccesses <- relativePath:
	default:
	}
}

func (s *ChannelSink) UploadFailed(relativePath, errorMessage string) {
	select {
	case s.UploadFailures <- FileUploadStatus{RelativePath: relativePath, Status: StatusFailed, Error: errorMessage}:
	default:
	}
}
