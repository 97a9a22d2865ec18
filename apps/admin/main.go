package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/quiz"
	logsvc "github.com/jkinyua/chuo/services/logger"
	"github.com/jkinyua/chuo/storage/database"
	sqlxrepos "github.com/jkinyua/chuo/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug)

	// set up DB
	sdb, err := database.Open(conf)
	errAndDie(err)
	defer sdb.Close()
	errAndDie(sdb.Ping())
	db := sqlx.NewDb(sdb, conf.Database.Engine)

	// start CLI
	cli := commandLine{
		db:         sdb,
		usrRepo:    sqlxrepos.NewUserRepository(db),
		rosterRepo: sqlxrepos.NewEnrollRepository(db),
		quizSvc:    quiz.NewService(sqlxrepos.NewQuizRepository(db), appLogger),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
