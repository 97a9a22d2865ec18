package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/jkinyua/chuo/core/enroll"
	"github.com/jkinyua/chuo/core/quiz"
	"github.com/jkinyua/chuo/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

// rosterRepository is what the roster import needs on top of the
// enrollment store.
type rosterRepository interface {
	enroll.Repository
	CreateStudentRecord(ctx context.Context, rec enroll.StudentRecord) (enroll.StudentRecord, error)
}

type commandLine struct {
	db         *sql.DB
	usrRepo    user.Repository
	rosterRepo rosterRepository
	quizSvc    quiz.ServiceInterface
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - update or create a user; the password is prompted")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  migrate COMMAND [args] - run database migrations (goose commands)")
	fmt.Println("  loadroster -file FILE.csv - import student records from a CSV roster")
	fmt.Println("  closequizzes [-owner OWNER_ID] - close active quizzes whose end date has passed")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant all roles.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	loadRosterCmd := flag.NewFlagSet("loadroster", flag.ExitOnError)
	loadRosterFile := loadRosterCmd.String("file", "", "Path to the CSV roster file.")

	closeQuizzesCmd := flag.NewFlagSet("closequizzes", flag.ExitOnError)
	closeQuizzesOwner := closeQuizzesCmd.String("owner", "", "Restrict the sweep to one owner's quizzes.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, string(pwd), *addUserAdmin)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, string(pwd))
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "loadroster":
		if err := loadRosterCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *loadRosterFile == "" {
			loadRosterCmd.Usage()
			return errHelp
		}
		return cli.loadRoster(*loadRosterFile)
	case "closequizzes":
		if err := closeQuizzesCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.closeQuizzes(*closeQuizzesOwner)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() ([]byte, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	return pwd, err
}
