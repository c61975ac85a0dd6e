package mqtt

// Topic namespace for the cloud vendor protocol.
//
// Every account owns a subtree rooted at sberdevices/v1/{login}: the cloud
// publishes into {root}/down/* and the gateway publishes into {root}/up/*.
// One global topic outside the account subtree carries endpoint discovery
// pushes for all accounts.
const (
	// topicNamespace is the fixed protocol prefix.
	topicNamespace = "sberdevices/v1"

	// TopicGlobalConfig carries cloud-wide configuration pushes (HTTP API
	// endpoint discovery). Not account-scoped.
	TopicGlobalConfig = topicNamespace + "/__config"
)

// Topics builds the account-scoped topic names. Construct with NewTopics;
// the account login is the namespace segment.
type Topics struct {
	root string
}

// NewTopics returns topic builders for the given account login.
func NewTopics(login string) Topics {
	return Topics{root: topicNamespace + "/" + login}
}

// Root returns the account topic root.
//
// Example: sberdevices/v1/user123
func (t Topics) Root() string {
	return t.root
}

// Downlink returns the wildcard pattern covering all cloud→gateway topics.
//
// Pattern: sberdevices/v1/user123/down/#
func (t Topics) Downlink() string {
	return t.root + "/down/#"
}

// DownCommands returns the inbound device-command topic.
//
// Example: sberdevices/v1/user123/down/commands
func (t Topics) DownCommands() string {
	return t.root + "/down/commands"
}

// DownStatusRequest returns the inbound state-refresh request topic.
//
// Example: sberdevices/v1/user123/down/status_request
func (t Topics) DownStatusRequest() string {
	return t.root + "/down/status_request"
}

// DownConfigRequest returns the inbound device-list refresh request topic.
//
// Example: sberdevices/v1/user123/down/config_request
func (t Topics) DownConfigRequest() string {
	return t.root + "/down/config_request"
}

// DownErrors returns the inbound cloud-error topic.
//
// Example: sberdevices/v1/user123/down/errors
func (t Topics) DownErrors() string {
	return t.root + "/down/errors"
}

// UpStatus returns the outbound device-state topic.
//
// Example: sberdevices/v1/user123/up/status
func (t Topics) UpStatus() string {
	return t.root + "/up/status"
}

// UpConfig returns the outbound device-list topic.
//
// Example: sberdevices/v1/user123/up/config
func (t Topics) UpConfig() string {
	return t.root + "/up/config"
}
