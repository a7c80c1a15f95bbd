// Package supervisor owns the content daemon process and its repository.
//
// The Supervisor installs the daemon binary into the base directory,
// initializes the repository, writes listener ports into the daemon config,
// and launches, relaunches and stops the daemon process. State transitions
// are published on the event bus as events.DaemonStateChanged and each
// transition to online as events.DaemonOnline.
//
// Repository commands (init, id, port writes, shutdown) run one at a time on
// the config queue. Process starts and terminations share the daemon queue,
// which admits two at once. Both queues honour context cancellation.
package supervisor
