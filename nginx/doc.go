// Package nginx manages the web server configuration of the host.
//
// Reload runs the syntax check and then the reload command, falling back to
// an alternate reload command once. CreateSite renders a server block for a
// domain, stages it, installs it into the sites directory and reloads; when
// the install is refused by the host the staged file stays where it is and
// the caller gets the commands to finish by hand.
//
// Every host change goes through a runner.Sequencer, so each attempted
// command is reported with its exit status and output.
package nginx
