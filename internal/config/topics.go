package config

const (
	// TopicIngestDocument is the NSQ topic carrying uploaded documents to the
	// ingestion worker.
	TopicIngestDocument = "ingest.document"

	// ChannelIngestWorker is the NSQ channel shared by all ingestion workers,
	// so each message goes to one of them.
	ChannelIngestWorker = "worker"
)
