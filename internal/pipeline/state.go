package pipeline

// State is the lifecycle position of one document job. Every job ends in
// either Archived or Failed; there are no other terminal states.
type State string

const (
	StateValidating  State = "Validating"
	StateDownloading State = "Downloading"
	StateExtracting  State = "Extracting"
	StateConverting  State = "Converting"
	StateEnriching   State = "Enriching"
	StateMerging     State = "Merging"
	StateDelivering  State = "Delivering"
	StateArchiving   State = "Archiving"
	StateArchived    State = "Archived"
	StateFailed      State = "Failed"
)
