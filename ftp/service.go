package ftp

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/dfkpanel/panel/config"
	"github.com/dfkpanel/panel/runner"
	"github.com/dfkpanel/panel/sandbox"
	"github.com/dfkpanel/panel/validation"
)

// Per-step timeouts
const (
	AccountTimeout   = 15 * time.Second
	PasswordTimeout  = 10 * time.Second
	DirectoryTimeout = 10 * time.Second
	OwnershipTimeout = 5 * time.Second
)

// NonInteractiveShells are the login shells that mark an FTP-only account
var NonInteractiveShells = []string{"/bin/false", "/usr/bin/false", "/usr/sbin/nologin", "/sbin/nologin"}

// AccountRequest is the untrusted input for a new account. An empty
// Password asks for a generated one.
type AccountRequest struct {
	Username string `json:"username" yaml:"username"`
	HomePath string `json:"home_path" yaml:"home_path"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Account is a created account. Password is only ever returned here.
type Account struct {
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	HomePath          string `json:"home_path" yaml:"home_path"`
	GeneratedPassword bool   `json:"generated_password" yaml:"generated_password"`
}

// User is an existing host account that looks like an FTP account
type User struct {
	Username string `json:"username" yaml:"username"`
	UID      int    `json:"uid" yaml:"uid"`
	Comment  string `json:"comment,omitempty" yaml:"comment,omitempty"`
	Home     string `json:"home" yaml:"home"`
	Shell    string `json:"shell" yaml:"shell"`
}

// Service manages FTP accounts as host users
type Service struct {
	cfg       *config.Config
	logger    *zap.Logger
	resolver  *sandbox.Resolver
	sequencer *runner.Sequencer
	lister    *runner.Sequencer
}

// New creates a Service. Relative home paths resolve under the resolver
// root; account commands are elevated when ftp.use_sudo is set.
func New(cfg *config.Config, logger *zap.Logger, cmdRunner runner.CommandRunner, resolver *sandbox.Resolver) *Service {
	log := logger.Named("ftp")
	return &Service{
		cfg:      cfg,
		logger:   log,
		resolver: resolver,
		sequencer: runner.NewSequencer(log, cmdRunner,
			runner.WithPrivilege(runner.Privilege{Enabled: cfg.FTP.UseSudo, Command: cfg.SudoArgs()}),
			runner.WithDefaultTimeout(cfg.GetDefaultTimeout()),
		),
		lister: runner.NewSequencer(log, cmdRunner, runner.WithDefaultTimeout(cfg.GetDefaultTimeout())),
	}
}

// CreateAccount creates a host user with a non-interactive shell, sets its
// password and prepares its home directory. If the password cannot be set
// the user is removed again. The returned Account holds the password in
// clear text; it is not recorded anywhere else.
func (s *Service) CreateAccount(ctx context.Context, req AccountRequest) (*Account, *runner.Outcome, error) {
	username := strings.TrimSpace(req.Username)
	if err := validation.Username(username); err != nil {
		return nil, nil, err
	}
	home, err := s.resolveHome(req.HomePath)
	if err != nil {
		return nil, nil, err
	}

	password, generated := req.Password, false
	if password == "" {
		if password, err = GeneratePassword(s.cfg.FTP.PasswordLength); err != nil {
			return nil, nil, err
		}
		generated = true
	} else if err := validation.Password(password); err != nil {
		return nil, nil, err
	}

	outcome := s.sequencer.Run(ctx, s.createPlan(username, home, password))
	if !outcome.Succeeded() {
		return nil, outcome, fmt.Errorf("failed to create account %s: %w", username, outcome.Err())
	}

	s.logger.Info("account created",
		zap.String("username", username),
		zap.String("home", home),
		zap.Bool("generated_password", generated),
		zap.String("state", string(outcome.State)))
	return &Account{Username: username, Password: password, HomePath: home, GeneratedPassword: generated}, outcome, nil
}

func (s *Service) createPlan(username, home, password string) runner.Plan {
	shell := s.cfg.FTP.Shell
	if shell == "" {
		shell = NonInteractiveShells[0]
	}
	return runner.Plan{
		Name: "ftp-create-account",
		Steps: []runner.Step{
			{Name: "useradd", Args: []string{"useradd", "-m", "-d", home, "-s", shell, username}, Timeout: AccountTimeout, Policy: runner.FatalOnFailure()},
			{
				Name:    "set-password",
				Args:    []string{"chpasswd"},
				Stdin:   username + ":" + password + "\n",
				Timeout: PasswordTimeout,
				Policy:  runner.RollbackVia(deleteStep(username)),
			},
			{Name: "mkdir-home", Args: []string{"mkdir", "-p", home}, Timeout: DirectoryTimeout, Policy: runner.BestEffort()},
			{Name: "chown-home", Args: []string{"chown", username + ":" + username, home}, Timeout: OwnershipTimeout, Policy: runner.BestEffort()},
			{Name: "chmod-home", Args: []string{"chmod", "755", home}, Timeout: OwnershipTimeout, Policy: runner.BestEffort()},
		},
	}
}

func deleteStep(username string) runner.Step {
	return runner.Step{Name: "userdel", Args: []string{"userdel", "-r", username}, Timeout: AccountTimeout, Policy: runner.FatalOnFailure()}
}

// DeleteAccount removes the user and its home directory. Only accounts with
// a UID in the managed range can be deleted.
func (s *Service) DeleteAccount(ctx context.Context, username string) (*runner.Outcome, error) {
	username = strings.TrimSpace(username)
	if err := validation.Username(username); err != nil {
		return nil, err
	}
	user, err := s.lookupAccount(ctx, username)
	if err != nil {
		return nil, err
	}
	if user.UID < s.cfg.FTP.MinUID || user.UID > s.cfg.FTP.MaxUID {
		return nil, validation.Invalidf("account %s (uid %d) is outside the managed uid range %d-%d",
			username, user.UID, s.cfg.FTP.MinUID, s.cfg.FTP.MaxUID)
	}
	outcome := s.sequencer.Run(ctx, runner.Plan{Name: "ftp-delete-account", Steps: []runner.Step{deleteStep(username)}})
	if !outcome.Succeeded() {
		return outcome, fmt.Errorf("failed to delete account %s: %w", username, outcome.Err())
	}
	s.logger.Info("account deleted", zap.String("username", username))
	return outcome, nil
}

func (s *Service) lookupAccount(ctx context.Context, username string) (User, error) {
	outcome := s.lister.Run(ctx, runner.Plan{
		Name:  "ftp-lookup-account",
		Steps: []runner.Step{{Name: "getent", Args: []string{"getent", "passwd", username}, Policy: runner.FatalOnFailure()}},
	})
	if !outcome.Succeeded() {
		return User{}, fmt.Errorf("account %s not found: %w", username, outcome.Err())
	}
	for _, u := range ParsePasswd(outcome.Stdout()) {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("account %s not found", username)
}

// ChangePassword sets a new password, passed to chpasswd over stdin
func (s *Service) ChangePassword(ctx context.Context, username, password string) (*runner.Outcome, error) {
	username = strings.TrimSpace(username)
	if err := validation.Username(username); err != nil {
		return nil, err
	}
	if err := validation.Password(password); err != nil {
		return nil, err
	}
	outcome := s.sequencer.Run(ctx, runner.Plan{
		Name: "ftp-change-password",
		Steps: []runner.Step{
			{Name: "set-password", Args: []string{"chpasswd"}, Stdin: username + ":" + password + "\n", Timeout: PasswordTimeout, Policy: runner.FatalOnFailure()},
		},
	})
	if !outcome.Succeeded() {
		return outcome, fmt.Errorf("failed to change password for %s: %w", username, outcome.Err())
	}
	s.logger.Info("password changed", zap.String("username", username))
	return outcome, nil
}

// ListAccounts returns the host users that look like FTP accounts: a
// non-interactive shell or a home under a managed directory, with a UID in
// the configured range.
func (s *Service) ListAccounts(ctx context.Context) ([]User, error) {
	outcome := s.lister.Run(ctx, runner.Plan{
		Name:  "ftp-list-accounts",
		Steps: []runner.Step{{Name: "getent", Args: []string{"getent", "passwd"}, Policy: runner.FatalOnFailure()}},
	})
	if !outcome.Succeeded() {
		return nil, fmt.Errorf("failed to list accounts: %w", outcome.Err())
	}
	return s.filterUsers(ParsePasswd(outcome.Stdout())), nil
}

func (s *Service) filterUsers(users []User) []User {
	bases := s.managedBases()
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.UID < s.cfg.FTP.MinUID || u.UID > s.cfg.FTP.MaxUID {
			continue
		}
		managed := false
		for _, base := range bases {
			if sandbox.Within(base, u.Home) {
				managed = true
				break
			}
		}
		if !managed && !isNonInteractive(u.Shell) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func (s *Service) managedBases() []string {
	bases := []string{s.resolver.Root(), "/var/ftp"}
	if s.cfg.FTP.HomeBase != "" {
		bases = append(bases, filepath.Clean(s.cfg.FTP.HomeBase))
	}
	return bases
}

func isNonInteractive(shell string) bool {
	for _, sh := range NonInteractiveShells {
		if shell == sh {
			return true
		}
	}
	return false
}

// ParsePasswd parses passwd(5) lines. Malformed lines are skipped.
func ParsePasswd(data string) []User {
	var users []User
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) != 7 {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		users = append(users, User{
			Username: fields[0],
			UID:      uid,
			Comment:  fields[4],
			Home:     fields[5],
			Shell:    fields[6],
		})
	}
	return users
}

// resolveHome maps the requested home directory to an absolute path.
// Relative paths resolve under the root; absolute paths must lie strictly
// below the root or the configured home base.
func (s *Service) resolveHome(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", validation.Invalidf("home path is required")
	}
	for _, r := range requested {
		if r == ':' || unicode.IsControl(r) {
			return "", validation.Invalidf("home path must not contain ':' or control characters")
		}
	}

	var home string
	if filepath.IsAbs(requested) {
		home = filepath.Clean(requested)
		if !sandbox.Within(s.resolver.Root(), home) && !sandbox.Within(s.cfg.FTP.HomeBase, home) {
			return "", fmt.Errorf("%w: %s", sandbox.ErrOutsideRoot, requested)
		}
	} else {
		resolved, err := s.resolver.Resolve(requested)
		if err != nil {
			return "", err
		}
		home = resolved
	}

	if home == s.resolver.Root() || home == filepath.Clean(s.cfg.FTP.HomeBase) {
		return "", validation.Invalidf("home path must be a directory below %s", home)
	}
	return home, nil
}
