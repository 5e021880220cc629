// Package container implements the container lifecycle engine: it
// allocates the kernel isolation primitives (overlay rootfs, new
// namespaces, cgroup limits, loopback), launches the target command
// inside them, and reverses every allocation on exit or failure.
//
// # Process model
//
// The host-side Supervisor re-executes the current binary as
// "/proc/self/exe init" with new mount, UTS, IPC, PID and network
// namespaces requested at process creation. Configuration travels to
// the child over a socketpair at fd 3. The child sets its hostname,
// pivots into the overlay root, brings loopback up, then blocks on the
// socketpair until the parent has attached it to the cgroup; only then
// does it exec the target command. The parent waits for the child and
// tears down cgroup, overlay and registry entry in reverse order of
// setup, on success and on partial failure alike.
package container
