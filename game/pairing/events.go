package pairing

// Events consumed from clients
const (
	EventJoinDesktop = "join-desktop"
	EventJoinMobile  = "join-mobile"
	EventMoveMobile  = "move-mobile"
)

// Events emitted to clients
const (
	EventGameCode    = "game-code"
	EventGameError   = "game-error"
	EventGameStart   = "game-start"
	EventGameOver    = "game-over"
	EventMoveDesktop = "move-desktop"
)

// Human-readable reasons carried by game-error
const (
	ReasonNoGame      = "No game to join."
	ReasonAlreadyFull = "2nd screen has already joined this game."
)
