package main

import (
	"context"
	"time"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{uname, email}})
	if err != nil {
		if err != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: now,
		}
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}

	isActive := true
	if usr.ID == "" {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.UpdateUser(ctx, usr, &isActive)
	}
	return err
}
