package redisstreams

const (
	streamPrefix   = "es:stream/"
	metaPrefix     = "es:meta/"
	snapshotPrefix = "es:snapshot/"
	allEventsName  = "all-events"
)

func streamKey(fullStreamID string) string {
	return streamPrefix + fullStreamID
}

// allEventsKey is the global fan-out stream every appended event is also
// written to, and the default subscription source (spec §4.2/§6.3).
func allEventsKey() string {
	return streamPrefix + allEventsName
}

func metaKey(fullStreamID string) string {
	return metaPrefix + fullStreamID
}

func snapshotKey(fullStreamID string) string {
	return snapshotPrefix + fullStreamID
}

// consumerName is the lone consumer used per subscription (spec §4.2/§6.3).
func consumerName(subscriberName string) string {
	return subscriberName + "-0"
}
