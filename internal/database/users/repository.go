// Package users provides database operations for the back-office user views.
//
// Account creation and credential checks live in internal/auth; this package
// covers lookups, listing and the active/role switches used by admins.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	list, total, err := repo.ListUsers(users.Filter{Role: entities.UserRoleReader}, 20, 0)
package users

import (
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/entities"
)

// Filter narrows ListUsers.
type Filter struct {
	Role   entities.UserRole
	Active *bool
	Query  string
}

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(id uint) (*entities.User, error) {
	var user entities.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(username string) (*entities.User, error) {
	var user entities.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns users matching the filter, newest first, with the total count.
func (r *Repository) ListUsers(f Filter, limit, offset int) ([]entities.User, int64, error) {
	query := r.db.Model(&entities.User{})
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if f.Active != nil {
		query = query.Where("active = ?", *f.Active)
	}
	if f.Query != "" {
		like := "%" + f.Query + "%"
		query = query.Where("username LIKE ? OR email LIKE ? OR full_name LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var list []entities.User
	err := query.Order("id DESC").Find(&list).Error
	return list, total, err
}

// SetActive enables or disables a user account.
func (r *Repository) SetActive(id uint, active bool) error {
	res := r.db.Model(&entities.User{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetRole changes a user's role.
func (r *Repository) SetRole(id uint, role entities.UserRole) error {
	res := r.db.Model(&entities.User{}).Where("id = ?", id).Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateProfile updates the editable profile fields of a user.
func (r *Repository) UpdateProfile(id uint, fullName, email string) error {
	return r.db.Model(&entities.User{}).Where("id = ?", id).
		Updates(map[string]any{"full_name": fullName, "email": email}).Error
}
