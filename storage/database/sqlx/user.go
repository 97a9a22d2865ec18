package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jkinyua/chuo/core"
	"github.com/jkinyua/chuo/core/user"
)

type userRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Username           null.String    `db:"username"`
	Email              null.String    `db:"email"`
	IsActive           bool           `db:"is_active"`
	Roles              pq.StringArray `db:"roles"`
	StudentNumber      null.String    `db:"student_number"`
	RegistrationNumber null.String    `db:"registration_number"`
	PasswordHash       []byte         `db:"password_hash"`
	CreatedAt          null.Time      `db:"created_at"`
	UpdatedAt          null.Time      `db:"updated_at"`
	LastLogin          null.Time      `db:"last_login"`
}

const userColumns = `id, name, username, email, is_active, roles, student_number, registration_number, password_hash, created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) pack(usr user.User) userRow {
	return userRow{
		ID:                 usr.ID,
		Name:               usr.Name,
		Username:           null.NewString(usr.Username, usr.Username != ""),
		Email:              null.NewString(usr.Email, usr.Email != ""),
		IsActive:           usr.IsActive,
		Roles:              usr.Roles,
		StudentNumber:      usr.StudentNumber,
		RegistrationNumber: usr.RegistrationNumber,
		PasswordHash:       usr.PasswordHash,
		CreatedAt:          null.NewTime(usr.CreatedAt.UTC(), !usr.CreatedAt.IsZero()),
		UpdatedAt:          null.NewTime(usr.UpdatedAt.UTC(), !usr.UpdatedAt.IsZero()),
		LastLogin:          null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) unpack(row userRow) user.User {
	return user.User{
		ID:                 row.ID,
		Name:               row.Name,
		Username:           row.Username.String,
		Email:              row.Email.String,
		IsActive:           row.IsActive,
		Roles:              row.Roles,
		StudentNumber:      row.StudentNumber,
		RegistrationNumber: row.RegistrationNumber,
		PasswordHash:       row.PasswordHash,
		CreatedAt:          row.CreatedAt.Time,
		UpdatedAt:          row.UpdatedAt.Time,
		LastLogin:          row.LastLogin.Time,
	}
}

func (repo userRepository) unpackSlice(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unpack(row))
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	q := `SELECT username, email FROM user_account WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}

	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		inQ, inArgs, err := sqlx.In(` AND id NOT IN (?)`, ids)
		if err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		q += inQ
		args = append(args, inArgs...)
	}

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, row := range rows {
		if username != "" && row.Username.String == username {
			return user.ErrUsernameExists
		}
		if email != "" && row.Email.String == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.pack(usr)
	q := `
INSERT INTO user_account (` + userColumns + `)
VALUES (:id, :name, :username, :email, :is_active, :roles, :student_number, :registration_number, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	q := `SELECT ` + userColumns + ` FROM user_account`
	var where []string
	var args []interface{}

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			where = append(where, `(name ILIKE ? OR username ILIKE ? OR email ILIKE ?)`)
			args = append(args, val, val, val)
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, `EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE ?)`)
				args = append(args, role+"%")
			}
			where = append(where, "("+strings.Join(roleConds, " OR ")+")")
		}
		if filter.IsActive != nil {
			where = append(where, `is_active = ?`)
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, `created_at >= ?`)
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, `created_at <= ?`)
			args = append(args, filter.CreatedTo.UTC())
		}
	}

	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if ordering != nil {
		orderList := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderList = append(orderList, ord.String())
		}
		q += ` ORDER BY ` + strings.Join(orderList, ", ")
	}

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.unpackSlice(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var cond string
	var args []interface{}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		cond = `id = ?`
		args = append(args, filter.ID)
	case filter.Username != "":
		cond = `username = ?`
		args = append(args, filter.Username)
	case filter.Email != "":
		cond = `email = ?`
		args = append(args, filter.Email)
	case filter.UsernameOrEmail != nil:
		var email string
		uname := filter.UsernameOrEmail[0]
		if len(filter.UsernameOrEmail) == 2 {
			email = filter.UsernameOrEmail[1]
		}
		if email == "" {
			email = uname
		} else if uname == "" {
			uname = email
		}
		cond = `(username = ? OR email = ?)`
		args = append(args, uname, email)
	case filter.StudentIdentifier != "":
		cond = `(student_number = ? OR registration_number = ?)`
		args = append(args, filter.StudentIdentifier, filter.StudentIdentifier)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := `SELECT ` + userColumns + ` FROM user_account WHERE ` + cond + ` LIMIT 1`
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q), args...); err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.unpack(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	// only save set fields
	set := []string{`updated_at = ?`}
	args := []interface{}{usr.UpdatedAt.UTC()}

	if usr.Name != "" {
		set = append(set, `name = ?`)
		args = append(args, usr.Name)
	}
	if usr.Username != "" {
		set = append(set, `username = ?`)
		args = append(args, usr.Username)
	}
	if usr.Email != "" {
		set = append(set, `email = ?`)
		args = append(args, usr.Email)
	}
	if usr.Roles != nil {
		set = append(set, `roles = ?`)
		args = append(args, pq.StringArray(usr.Roles))
	}
	if usr.PasswordHash != nil {
		set = append(set, `password_hash = ?`)
		args = append(args, usr.PasswordHash)
	}
	if !usr.LastLogin.IsZero() {
		set = append(set, `last_login = ?`)
		args = append(args, usr.LastLogin.UTC())
	}
	if isActive != nil {
		set = append(set, `is_active = ?`)
		args = append(args, *isActive)
	}
	args = append(args, usr.ID)

	q := `UPDATE user_account SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM user_account WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "deleting users")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
