// The usrdir command is a thin command-line front-end over the session
// layer of the greenhouse directory client. Each invocation restores the
// persisted session, runs one operation, and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/greenhouse-mgmt/usrdir/internal/apiclient"
	"github.com/greenhouse-mgmt/usrdir/internal/config"
	"github.com/greenhouse-mgmt/usrdir/internal/credstore"
	"github.com/greenhouse-mgmt/usrdir/internal/logger"
	"github.com/greenhouse-mgmt/usrdir/internal/models"
	"github.com/greenhouse-mgmt/usrdir/internal/session"
)

const usage = `usage: usrdir [flags] <command> [args]

commands:
  register <name> <email> <password> [phone]
  login <email> <password>
  logout
  whoami
  list
  create <name> <email> <password> [phone]
  update <id> <name> <email> [phone [password]]
  delete <id>
`

var errUsage = errors.New("invalid arguments")

// logNavigator reports the navigation directives the session issues;
// a one-shot CLI has no screens to switch.
type logNavigator struct{}

func (logNavigator) Navigate(route string) {
	logger.Log.Debugln("navigate", "route", route)
}

func main() {
	if err := run(); err != nil {
		fail(err)
	}
}

func fail(err error) {
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usage)
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}

func run() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := getCredentialStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Log.Debugln("credential store close error:", err)
		}
	}()

	sess := session.New(
		apiclient.New(cfg.APIBaseURL, cfg.RequestTimeout),
		store,
		logNavigator{},
	)

	ctx := context.Background()
	if err := sess.Restore(ctx); err != nil {
		return err
	}

	return dispatch(ctx, sess, os.Args[1:])
}

func getCredentialStore(cfg *config.Config) (credstore.Store, error) {
	if cfg.CredentialsFile == "" {
		return credstore.NewMemoryStore(), nil
	}

	return credstore.NewFileStore(cfg.CredentialsFile)
}

func dispatch(ctx context.Context, sess *session.Session, args []string) error {
	args = skipFlags(args)
	if len(args) == 0 {
		return errUsage
	}

	command, args := args[0], args[1:]

	switch command {
	case "register":
		if len(args) < 3 {
			return errUsage
		}
		phone := ""
		if len(args) > 3 {
			phone = args[3]
		}
		if err := sess.Register(ctx, args[0], args[1], args[2], phone); err != nil {
			return err
		}
		printUser(sess.CurrentUser())
		return nil

	case "login":
		if len(args) < 2 {
			return errUsage
		}
		if err := sess.Login(ctx, args[0], args[1]); err != nil {
			return err
		}
		printUser(sess.CurrentUser())
		return nil

	case "logout":
		return sess.Logout(ctx)

	case "whoami":
		if !sess.IsAuthenticated() {
			fmt.Println("not logged in")
			return nil
		}
		printUser(sess.CurrentUser())
		return nil

	case "list":
		if err := sess.LoadUsers(ctx); err != nil {
			return err
		}
		for _, usr := range sess.Users() {
			printUser(&usr)
		}
		return nil

	case "create":
		if len(args) < 3 {
			return errUsage
		}
		phone := ""
		if len(args) > 3 {
			phone = args[3]
		}
		return sess.CreateUser(ctx, args[0], args[1], phone, args[2])

	case "update":
		if len(args) < 3 {
			return errUsage
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return errUsage
		}
		phone, password := "", ""
		if len(args) > 3 {
			phone = args[3]
		}
		if len(args) > 4 {
			password = args[4]
		}
		return sess.UpdateUser(ctx, id, args[1], args[2], phone, password)

	case "delete":
		if len(args) < 1 {
			return errUsage
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return errUsage
		}
		return sess.DeleteUser(ctx, id)
	}

	return errUsage
}

// skipFlags drops the leading flag arguments already consumed by
// config.New, leaving the command and its positional arguments.
func skipFlags(args []string) []string {
	for i := 0; i < len(args); i++ {
		if len(args[i]) == 0 || args[i][0] != '-' {
			return args[i:]
		}
		// every flag of this binary takes a value; in the "-flag value"
		// form it occupies the next token, in "-flag=value" it does not
		if !strings.Contains(args[i], "=") {
			i++
		}
	}

	return nil
}

func printUser(usr *models.User) {
	if usr == nil {
		return
	}
	fmt.Printf("%d\t%s\t%s\t%s\n", usr.ID, usr.Name, usr.Email, usr.Phone)
}
