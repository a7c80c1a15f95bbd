package supervisor

// State is a supervisor lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateLaunching     State = "launching"
	StateRetrying      State = "retrying"
	StateOnline        State = "online"
	StateTerminating   State = "terminating"
	// StateFailed is entered when the binary cannot be installed. Automatic
	// startup stops until an operator fixes the installation.
	StateFailed State = "failed"
)

// DaemonConfig describes the daemon instance the supervisor manages.
type DaemonConfig struct {
	APIPort     uint16
	GatewayPort uint16
	SwarmPort   uint16
	RepoPath    string
	BinaryPath  string
}

