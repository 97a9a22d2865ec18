package dummydb

import (
	"sync"

	"github.com/jkinyua/chuo/core/enroll"
	"github.com/jkinyua/chuo/core/quiz"
	"github.com/jkinyua/chuo/core/user"
)

type (
	DB struct {
		user   *userTable
		quiz   *quizTable
		enroll *enrollTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	quizTable struct {
		sync.RWMutex
		table map[string]*quiz.Quiz
	}

	enrollTables struct {
		sync.RWMutex
		records map[string]*enroll.StudentRecord
		otps    map[string]*enroll.OTPVerification
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:   &userTable{table: make(map[string]*user.User)},
		quiz:   &quizTable{table: make(map[string]*quiz.Quiz)},
		enroll: &enrollTables{
			records: make(map[string]*enroll.StudentRecord),
			otps:    make(map[string]*enroll.OTPVerification),
		},
	}
	return db, nil
}
