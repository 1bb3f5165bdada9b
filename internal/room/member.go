package room

// Member is the view a Room has of a connected client. Sessions satisfy
// this without the room package importing the session package, so
// membership never creates a dependency cycle between the two — the
// router is the only thing that knows about both.
type Member interface {
	// SessionID is the server-assigned id of the connected client.
	SessionID() string
	// DisplayName is the opaque user handle echoed in member lists.
	DisplayName() string
	// Enqueue attempts a non-blocking delivery of a framed outbound
	// message. It returns false if the member's outbound queue is full;
	// the Room never blocks on a slow member and never retries — the
	// caller is expected to disconnect on false.
	Enqueue(message []byte) bool
	// Disconnect forcibly closes the member's transport. Called by the
	// Room when a publish overflows that member's queue.
	Disconnect()
}
