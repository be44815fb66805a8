package sshclient

// StreamKind distinguishes normal channel data (Stdout) from
// extended/stderr channel data (Stderr).
type StreamKind int

const (
	StreamStdout StreamKind = iota
	StreamStderr
)

func (s StreamKind) String() string {
	if s == StreamStderr {
		return "stderr"
	}
	return "stdout"
}

// TerminalType is the set of pty-req terminal names the shell session
// can request. Wire names follow RFC 4254 §6.2 conventions.
type TerminalType int

const (
	TerminalVanilla TerminalType = iota
	TerminalVt100
	TerminalVt102
	TerminalVt220
	TerminalAnsi
	TerminalXterm
	TerminalXterm256
)

func (t TerminalType) wireName() string {
	switch t {
	case TerminalVanilla:
		return "vanilla"
	case TerminalVt100:
		return "vt100"
	case TerminalVt102:
		return "vt102"
	case TerminalVt220:
		return "vt220"
	case TerminalAnsi:
		return "ansi"
	case TerminalXterm:
		return "xterm"
	case TerminalXterm256:
		return "xterm-256color"
	default:
		return "xterm-256color"
	}
}

// TerminalMode is a single RFC 4254 PTY opcode/value pair.
type TerminalMode struct {
	Opcode byte
	Value  uint32
}

// RFC 4254 §8 terminal mode opcodes used for the session's defaults.
const (
	ModeECHO          byte = 53
	ModeECHOK         byte = 55
	ModeECHOE         byte = 54
	ModeICANON        byte = 51
	ModeISIG          byte = 50
	ModeICRNL         byte = 36
	ModeONLCR         byte = 72
	ModeTTY_OP_ISPEED byte = 128
	ModeTTY_OP_OSPEED byte = 129
)

// defaultTerminalModes matches spec.md §6's defaults. Opcode values are
// taken from RFC 4254; a caller's TerminalMode list overrides these by
// opcode when both specify the same opcode.
func defaultTerminalModes() []TerminalMode {
	return []TerminalMode{
		{ModeECHO, 1},
		{ModeECHOK, 1},
		{ModeECHOE, 1},
		{ModeICANON, 1},
		{ModeISIG, 1},
		{ModeICRNL, 1},
		{ModeONLCR, 1},
		{ModeTTY_OP_ISPEED, 38400},
		{ModeTTY_OP_OSPEED, 38400},
	}
}

// mergeTerminalModes overlays overrides onto defaults by opcode,
// preserving default ordering and appending any opcode the overrides
// introduce that wasn't already present.
func mergeTerminalModes(overrides []TerminalMode) []TerminalMode {
	base := defaultTerminalModes()
	merged := make([]TerminalMode, len(base))
	copy(merged, base)

	for _, o := range overrides {
		found := false
		for i := range merged {
			if merged[i].Opcode == o.Opcode {
				merged[i].Value = o.Value
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, o)
		}
	}
	return merged
}

// TerminalSize is the character grid requested for the pty.
type TerminalSize struct {
	Rows uint32
	Cols uint32
}

// TerminalPixelSize is the optional pixel dimensions hint for the pty.
type TerminalPixelSize struct {
	Width  uint32
	Height uint32
}

// KeyType enumerates the key algorithms GenerateKeyPair supports.
// KeyEd448 is listed for parity with the host-facing enum but is
// never implemented — Go's standard library has no Ed448 primitive —
// and always fails with ErrUnsupportedKeyType.
type KeyType int

const (
	KeyRsa KeyType = iota
	KeyEcdsa
	KeyEd25519
	KeyEd448
)

func (k KeyType) String() string {
	switch k {
	case KeyRsa:
		return "rsa"
	case KeyEcdsa:
		return "ecdsa"
	case KeyEd25519:
		return "ed25519"
	case KeyEd448:
		return "ed448"
	default:
		return "unknown"
	}
}

// Security selects how a Connection authenticates: a plain password,
// or an OpenSSH-PEM-encoded private key used for public-key auth.
type Security struct {
	Password string // used when Key == ""
	Key      string // OpenSSH PEM text; takes precedence when non-empty
}

// PasswordAuth builds a Security value for password authentication.
func PasswordAuth(password string) Security {
	return Security{Password: password}
}

// KeyAuth builds a Security value for public-key authentication from
// an OpenSSH PEM-encoded private key.
func KeyAuth(opensshPEM string) Security {
	return Security{Key: opensshPEM}
}

// ConnectionDetails identifies the server to dial and the credentials
// to authenticate with.
type ConnectionDetails struct {
	Host     string
	Port     uint16
	Username string
	Security Security
}

// ProgressEvent is delivered to ConnectOptions.OnProgress as the
// connection lifecycle advances through its pre-Ready states.
type ProgressEvent int

const (
	ProgressTCPConnected ProgressEvent = iota
	ProgressSSHHandshake
)

// ProgressCallback receives connect-time lifecycle events. Invoked
// synchronously on the goroutine running Connect, before Connect
// returns.
type ProgressCallback interface {
	OnProgress(event ProgressEvent)
}

// ProgressCallbackFunc adapts a plain function to ProgressCallback.
type ProgressCallbackFunc func(ProgressEvent)

func (f ProgressCallbackFunc) OnProgress(event ProgressEvent) { f(event) }

// DisconnectedCallback is notified once a Connection has fully torn
// down via Disconnect. A transport failure that is not followed by a
// Disconnect call does not invoke it.
type DisconnectedCallback interface {
	OnDisconnected(connectionID string)
}

// DisconnectedCallbackFunc adapts a plain function to DisconnectedCallback.
type DisconnectedCallbackFunc func(connectionID string)

func (f DisconnectedCallbackFunc) OnDisconnected(connectionID string) { f(connectionID) }

// ShellClosedCallback is notified when a Shell transitions to Closed,
// whether via an explicit Close, a remote close, or a stream EOF.
type ShellClosedCallback interface {
	OnShellClosed(channelID uint32)
}

// ShellClosedCallbackFunc adapts a plain function to ShellClosedCallback.
type ShellClosedCallbackFunc func(channelID uint32)

func (f ShellClosedCallbackFunc) OnShellClosed(channelID uint32) { f(channelID) }

// ShellEvent is the tagged union delivered to a ShellListener: either
// a ChunkEvent or a DroppedEvent.
type ShellEvent interface {
	isShellEvent()
}

// ChunkEvent carries output bytes for one stream, possibly fused from
// several contiguous same-stream Chunks by the subscriber's
// coalescing window.
type ChunkEvent struct {
	Seq    uint64
	TMs    float64
	Stream StreamKind
	Bytes  []byte
}

func (ChunkEvent) isShellEvent() {}

// DroppedEvent reports a gap in the seq space the subscriber could not
// replay or follow because the ring evicted it, or the subscriber
// lagged the live broadcast, before it could be delivered.
type DroppedEvent struct {
	FromSeq uint64
	ToSeq   uint64
}

func (DroppedEvent) isShellEvent() {}

// ShellListener receives ShellEvents for a subscription registered via
// Shell.AddListener. Invoked from a background goroutine; must be
// thread-safe and should not block.
type ShellListener interface {
	OnEvent(event ShellEvent)
}

// ShellListenerFunc adapts a plain function to ShellListener.
type ShellListenerFunc func(ShellEvent)

func (f ShellListenerFunc) OnEvent(event ShellEvent) { f(event) }

// ListenerOptions configures a subscriber worker started by AddListener.
type ListenerOptions struct {
	Cursor Cursor
	// CoalesceMs is the coalescing window in milliseconds; 0 selects
	// the default (16ms, see DefaultCoalesceMs).
	CoalesceMs int
}

// DefaultCoalesceMs is the coalescing window used when
// ListenerOptions.CoalesceMs is 0.
const DefaultCoalesceMs = 16

// StartShellOptions configures a new shell channel.
type StartShellOptions struct {
	Term              TerminalType
	TerminalModes     []TerminalMode
	TerminalSize      TerminalSize
	TerminalPixelSize TerminalPixelSize
	OnClosed          ShellClosedCallback
}

// ConnectOptions configures a new Connection.
type ConnectOptions struct {
	ConnectionDetails ConnectionDetails
	OnProgress        ProgressCallback
	OnDisconnected    DisconnectedCallback
}

// SSHConnectionInfo is the read-only snapshot returned by Connection.Info.
type SSHConnectionInfo struct {
	Identity             string
	CreatedAtMs          float64
	TCPEstablishedAtMs   float64
	HandshakeCompletedMs float64
	ShellCount           int
}

// ShellSessionInfo is the read-only snapshot returned by Shell.Info.
type ShellSessionInfo struct {
	ChannelID    uint32
	CreatedAtMs  float64
	Term         TerminalType
	TerminalSize TerminalSize
	State        ShellState
}

// ShellState is the one-way shell lifecycle state machine of spec.md §4.6.
type ShellState int

const (
	ShellOpening ShellState = iota
	ShellPtyRequested
	ShellShellRequested
	ShellActive
	ShellClosing
	ShellClosed
)

func (s ShellState) String() string {
	switch s {
	case ShellOpening:
		return "opening"
	case ShellPtyRequested:
		return "pty_requested"
	case ShellShellRequested:
		return "shell_requested"
	case ShellActive:
		return "active"
	case ShellClosing:
		return "closing"
	case ShellClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionState is the one-way Connection lifecycle state machine of
// spec.md §4.6.
type ConnectionState int

const (
	ConnInit ConnectionState = iota
	ConnTCPConnecting
	ConnTCPConnected
	ConnHandshaking
	ConnAuthenticating
	ConnReady
	ConnDisconnecting
	ConnClosed
	ConnFailed
)
