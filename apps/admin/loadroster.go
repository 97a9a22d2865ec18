package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/enroll"
)

// loadRoster imports student records from a CSV file with a header row:
// registration_number,student_number,full_name[,email]
// Rows whose numbers already exist in the roster are skipped.
func (cli *commandLine) loadRoster(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening roster file")
	}
	defer f.Close()

	ctx := context.Background()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // email column is optional

	header, err := r.Read()
	if err != nil {
		return errors.Wrap(err, "reading roster header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[core.CleanString(name, true /* lower */)] = i
	}
	var minFields int
	for _, required := range []string{"registration_number", "student_number", "full_name"} {
		i, ok := cols[required]
		if !ok {
			return fmt.Errorf("roster file is missing the %q column", required)
		}
		if i >= minFields {
			minFields = i + 1
		}
	}

	var created, skipped int
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "reading roster line %d", line)
		}
		if len(row) < minFields {
			return fmt.Errorf("roster line %d has missing fields", line)
		}

		rec := enroll.StudentRecord{
			RegistrationNumber: core.CleanString(row[cols["registration_number"]]),
			StudentNumber:      core.CleanString(row[cols["student_number"]]),
			FullName:           core.CleanString(row[cols["full_name"]]),
		}
		if rec.RegistrationNumber == "" || rec.StudentNumber == "" || rec.FullName == "" {
			return fmt.Errorf("roster line %d has empty required fields", line)
		}
		if i, ok := cols["email"]; ok && i < len(row) {
			if email := core.CleanString(row[i], true /* lower */); email != "" {
				rec.Email = null.StringFrom(email)
			}
		}

		if _, err = cli.rosterRepo.GetStudentRecord(ctx, rec.RegistrationNumber, rec.StudentNumber); err == nil {
			skipped++
			continue
		} else if errors.Cause(err) != enroll.ErrNotFound {
			return errors.Wrapf(err, "checking roster line %d", line)
		}

		if _, err = cli.rosterRepo.CreateStudentRecord(ctx, rec); err != nil {
			return errors.Wrapf(err, "importing roster line %d", line)
		}
		created++
	}

	fmt.Printf("roster import done: %d created, %d skipped\n", created, skipped)
	return nil
}
