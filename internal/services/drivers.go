package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/validation"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DriverService manages accounts, profiles and favorites.
type DriverService struct {
	db       *gorm.DB
	cache    ProfileCache
	activity *ActivityService
	cost     int
}

func NewDriverService(db *gorm.DB, cache ProfileCache, activity *ActivityService) *DriverService {
	return &DriverService{db: db, cache: cache, activity: activity, cost: bcrypt.DefaultCost}
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Nom       string `json:"nom" validate:"notblank,max=100"`
	Prenom    string `json:"prenom" validate:"notblank,max=100"`
	Telephone string `json:"telephone" validate:"max=30"`
	Societe   string `json:"societe" validate:"max=255"`
	SIRET     string `json:"siret" validate:"omitempty,len=14,numeric"`
	Adresse   string `json:"adresse" validate:"max=500"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active driver holding the Chauffeur role.
func (s *DriverService) Register(ctx context.Context, in RegisterInput) (*models.Driver, error) {
	in.Email = normalizeEmail(in.Email)
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}
	d := &models.Driver{
		Email:     in.Email,
		Password:  string(hash),
		Nom:       strings.TrimSpace(in.Nom),
		Prenom:    strings.TrimSpace(in.Prenom),
		Telephone: in.Telephone,
		Societe:   in.Societe,
		SIRET:     in.SIRET,
		Adresse:   in.Adresse,
		Status:    models.DriverStatusActive,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Driver{}).Where("email = ?", d.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return conflict("email already registered")
		}
		var role models.Role
		if err := tx.Where("name = ?", models.RoleChauffeur).First(&role).Error; err != nil {
			return lookup(err, "default role")
		}
		d.Roles = []models.Role{role}
		if err := tx.Omit("Roles.*").Create(d).Error; err != nil {
			if IsUniqueViolation(err) {
				return conflict("email already registered")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.activity.Log(ctx, d.ID, models.ActivityRegister, "Inscription", nil)
	return d, nil
}

// Authenticate checks credentials, refuses blocked accounts and stamps last_seen_at.
func (s *DriverService) Authenticate(ctx context.Context, email, password string) (*models.Driver, error) {
	var d models.Driver
	err := s.db.WithContext(ctx).Preload("Roles").Where("email = ?", normalizeEmail(email)).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &Error{Kind: ErrUnauthorized, Message: "invalid email or password"}
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(d.Password), []byte(password)) != nil {
		return nil, &Error{Kind: ErrUnauthorized, Message: "invalid email or password"}
	}
	if d.Status == models.DriverStatusBlocked {
		return nil, forbidden("account blocked")
	}
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&d).UpdateColumn("last_seen_at", now).Error; err != nil {
		return nil, err
	}
	d.LastSeenAt = &now
	s.activity.Log(ctx, d.ID, models.ActivityLogin, "Connexion", nil)
	return &d, nil
}

// Get loads a driver with its roles.
func (s *DriverService) Get(ctx context.Context, id uint) (*models.Driver, error) {
	var d models.Driver
	if err := s.db.WithContext(ctx).Preload("Roles").First(&d, id).Error; err != nil {
		return nil, lookup(err, "driver")
	}
	return &d, nil
}

// Verify reports whether id is an existing, non-blocked driver.
func (s *DriverService) Verify(ctx context.Context, id uint) bool {
	var count int64
	s.db.WithContext(ctx).Model(&models.Driver{}).
		Where("id = ? AND status <> ?", id, models.DriverStatusBlocked).
		Count(&count)
	return count > 0
}

// ProfileInput updates the editable profile fields; nil fields are left unchanged.
type ProfileInput struct {
	Nom                     *string `json:"nom" validate:"omitempty,notblank,max=100"`
	Prenom                  *string `json:"prenom" validate:"omitempty,notblank,max=100"`
	Telephone               *string `json:"telephone" validate:"omitempty,max=30"`
	Societe                 *string `json:"societe" validate:"omitempty,max=255"`
	SIRET                   *string `json:"siret" validate:"omitempty,len=14,numeric"`
	Adresse                 *string `json:"adresse" validate:"omitempty,max=500"`
	NumeroPermis            *string `json:"numero_permis" validate:"omitempty,max=50"`
	NumeroCarteVTC          *string `json:"numero_carte_vtc" validate:"omitempty,max=50"`
	VehiculeMarque          *string `json:"vehicule_marque" validate:"omitempty,max=100"`
	VehiculeModele          *string `json:"vehicule_modele" validate:"omitempty,max=100"`
	VehiculeImmatriculation *string `json:"vehicule_immatriculation" validate:"omitempty,max=20"`
}

// UpdateProfile applies in to the actor's profile.
func (s *DriverService) UpdateProfile(ctx context.Context, actor *models.Driver, in ProfileInput) (*models.Driver, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	updates := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("nom", in.Nom)
	set("prenom", in.Prenom)
	set("telephone", in.Telephone)
	set("societe", in.Societe)
	set("siret", in.SIRET)
	set("adresse", in.Adresse)
	set("numero_permis", in.NumeroPermis)
	set("numero_carte_vtc", in.NumeroCarteVTC)
	set("vehicule_marque", in.VehiculeMarque)
	set("vehicule_modele", in.VehiculeModele)
	set("vehicule_immatriculation", in.VehiculeImmatriculation)
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.Driver{}).Where("id = ?", actor.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
		s.activity.Log(ctx, actor.ID, models.ActivityProfileUpdate, "Profil mis à jour", nil)
	}
	return s.Get(ctx, actor.ID)
}

// DriverFilter narrows the admin listing.
type DriverFilter struct {
	Status string
	Search string
	Page   Page
}

// List returns drivers for administration, newest first.
func (s *DriverService) List(ctx context.Context, f DriverFilter) ([]models.Driver, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Driver{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(nom) LIKE ? OR LOWER(prenom) LIKE ? OR LOWER(societe) LIKE ?", like, like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var drivers []models.Driver
	err := f.Page.apply(q.Preload("Roles").Order("created_at DESC, id DESC")).Find(&drivers).Error
	return drivers, total, err
}

// SetStatus changes the account status of a driver. Admins cannot change their own.
func (s *DriverService) SetStatus(ctx context.Context, actor *models.Driver, id uint, status models.DriverStatus) (*models.Driver, error) {
	if !status.Valid() {
		return nil, invalidFields(validation.Violations{"status": "invalid_choice"})
	}
	if id == actor.ID {
		return nil, conflict("you cannot change your own status")
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.IsProtected() && !actor.HasRole(models.RoleSuperAdmin) {
		return nil, forbidden("administrators can only be managed by a super administrator")
	}
	if err := s.db.WithContext(ctx).Model(target).Update("status", status).Error; err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateUser(id)
	}
	target.Status = status
	return target, nil
}

// SkippedDriver explains why a bulk-delete target was kept.
type SkippedDriver struct {
	ID     uint   `json:"id"`
	Reason string `json:"reason"`
}

// BulkDeleteResult reports deleted and skipped driver ids.
type BulkDeleteResult struct {
	Deleted []uint          `json:"deleted"`
	Skipped []SkippedDriver `json:"skipped"`
}

// BulkDelete hard-deletes drivers. Administrators, the actor and drivers with
// rides, transactions or invoices are skipped and reported.
func (s *DriverService) BulkDelete(ctx context.Context, actor *models.Driver, ids []uint) (*BulkDeleteResult, error) {
	if len(ids) == 0 {
		return nil, invalidFields(validation.Violations{"ids": "required"})
	}
	res := &BulkDeleteResult{Deleted: []uint{}, Skipped: []SkippedDriver{}}
	seen := map[uint]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		reason, err := s.deleteOne(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			res.Skipped = append(res.Skipped, SkippedDriver{ID: id, Reason: reason})
			continue
		}
		res.Deleted = append(res.Deleted, id)
		if s.cache != nil {
			s.cache.InvalidateUser(id)
		}
	}
	return res, nil
}

func (s *DriverService) deleteOne(ctx context.Context, actor *models.Driver, id uint) (string, error) {
	if id == actor.ID {
		return "self", nil
	}
	var skip string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.Driver
		if err := tx.Preload("Roles").First(&d, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				skip = "not_found"
				return nil
			}
			return err
		}
		if d.IsProtected() {
			skip = "protected"
			return nil
		}
		var refs int64
		for _, q := range []*gorm.DB{
			tx.Model(&models.Ride{}).Where("vendeur_id = ? OR accepteur_id = ?", id, id),
			tx.Model(&models.Transaction{}).Where("payeur_id = ? OR beneficiaire_id = ?", id, id),
			tx.Model(&models.Facture{}).Where("emetteur_id = ? OR destinataire_id = ?", id, id),
		} {
			var n int64
			if err := q.Count(&n).Error; err != nil {
				return err
			}
			refs += n
		}
		if refs > 0 {
			skip = "has_activity"
			return nil
		}
		if err := tx.Exec("DELETE FROM chauffeur_favoris WHERE chauffeur_id = ? OR favori_id = ?", id, id).Error; err != nil {
			return err
		}
		if err := tx.Model(&d).Association("Roles").Clear(); err != nil {
			return err
		}
		for _, m := range []any{&models.GroupeMembre{}, &models.Document{}, &models.ActivityLog{}, &models.RideTracking{}} {
			if err := tx.Where("chauffeur_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("chauffeur_id = ? OR inviteur_id = ?", id, id).Delete(&models.GroupeInvitation{}).Error; err != nil {
			return err
		}
		convs := tx.Model(&models.Conversation{}).Select("id").Where("participant_a_id = ? OR participant_b_id = ?", id, id)
		if err := tx.Where("conversation_id IN (?)", convs).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("participant_a_id = ? OR participant_b_id = ?", id, id).Delete(&models.Conversation{}).Error; err != nil {
			return err
		}
		var owned []uint
		if err := tx.Model(&models.Groupe{}).Where("proprietaire_id = ?", id).Pluck("id", &owned).Error; err != nil {
			return err
		}
		if len(owned) > 0 {
			if err := tx.Where("groupe_id IN ?", owned).Delete(&models.GroupeMembre{}).Error; err != nil {
				return err
			}
			if err := tx.Where("groupe_id IN ?", owned).Delete(&models.GroupeInvitation{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", owned).Delete(&models.Groupe{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&d).Error
	})
	return skip, err
}

// Favoris lists the actor's favorite drivers.
func (s *DriverService) Favoris(ctx context.Context, actor *models.Driver) ([]*models.Driver, error) {
	var favoris []*models.Driver
	err := s.db.WithContext(ctx).Model(&models.Driver{ID: actor.ID}).Association("Favoris").Find(&favoris)
	return favoris, err
}

// AddFavori marks id as a favorite of the actor. Adding twice is a no-op.
func (s *DriverService) AddFavori(ctx context.Context, actor *models.Driver, id uint) error {
	if id == actor.ID {
		return invalid("you cannot add yourself to your favorites")
	}
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Exec(
		"INSERT INTO chauffeur_favoris (chauffeur_id, favori_id) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM chauffeur_favoris WHERE chauffeur_id = ? AND favori_id = ?)",
		actor.ID, target.ID, actor.ID, target.ID,
	).Error
}

// RemoveFavori removes id from the actor's favorites.
func (s *DriverService) RemoveFavori(ctx context.Context, actor *models.Driver, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Driver{ID: actor.ID}).Association("Favoris").Delete(&models.Driver{ID: id})
}
