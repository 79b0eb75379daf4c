package entities

// Member is a chat-platform member as seen at registration time. The display
// name is snapshotted: it is what ends up in the bracket.
type Member struct {
	ID          string
	DisplayName string
}
