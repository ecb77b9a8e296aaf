package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/diewo77/vtc-exchange/internal/notify"
	"github.com/diewo77/vtc-exchange/validation"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	codeLength   = 8
	codeAttempts = 5
)

// ownedGroupes selects the ids of groups owned by driverID.
func ownedGroupes(db *gorm.DB, driverID uint) *gorm.DB {
	return db.Model(&models.Groupe{}).Select("id").Where("proprietaire_id = ?", driverID)
}

// joinedGroupes selects the ids of groups where driverID has a membership row.
func joinedGroupes(db *gorm.DB, driverID uint) *gorm.DB {
	return db.Model(&models.GroupeMembre{}).Select("groupe_id").Where("chauffeur_id = ?", driverID)
}

// inMemberGroupes restricts q to rows whose column references a group driverID
// belongs to. The owner is a member without a membership row.
func inMemberGroupes(q *gorm.DB, column string, driverID uint) *gorm.DB {
	db := q.Session(&gorm.Session{NewDB: true})
	return q.Where(fmt.Sprintf("(%s IN (?) OR %s IN (?))", column, column),
		ownedGroupes(db, driverID), joinedGroupes(db, driverID))
}

// hasMembre reports whether driverID owns groupeID or has a membership row in it.
func hasMembre(db *gorm.DB, groupeID, driverID uint) (bool, error) {
	var count int64
	err := inMemberGroupes(db.Model(&models.Groupe{}), "id", driverID).
		Where("id = ?", groupeID).
		Count(&count).Error
	return count > 0, err
}

// newGroupeCode returns an uppercase alphanumeric join code.
func newGroupeCode() string {
	return rand.Text()[:codeLength]
}

// GroupeService manages trust groups, memberships and invitations.
type GroupeService struct {
	db            *gorm.DB
	mailer        notify.Mailer
	activity      *ActivityService
	log           *slog.Logger
	baseURL       string
	invitationTTL time.Duration
}

func NewGroupeService(db *gorm.DB, mailer notify.Mailer, activity *ActivityService, log *slog.Logger, baseURL string, invitationTTL time.Duration) *GroupeService {
	return &GroupeService{
		db:            db,
		mailer:        mailer,
		activity:      activity,
		log:           log,
		baseURL:       strings.TrimRight(baseURL, "/"),
		invitationTTL: invitationTTL,
	}
}

// GroupeInput is the payload of group creation and update.
type GroupeInput struct {
	Nom         string `json:"nom" validate:"notblank,max=150"`
	Description string `json:"description" validate:"max=2000"`
}

// HasMembre reports whether driverID belongs to the group. The owner always does.
func (s *GroupeService) HasMembre(ctx context.Context, groupeID, driverID uint) (bool, error) {
	return hasMembre(s.db.WithContext(ctx), groupeID, driverID)
}

func (s *GroupeService) load(ctx context.Context, id uint) (*models.Groupe, error) {
	var g models.Groupe
	if err := s.db.WithContext(ctx).Preload("Proprietaire").First(&g, id).Error; err != nil {
		return nil, lookup(err, "group")
	}
	return &g, nil
}

// membreRole returns the membership role of driverID, false when there is no row.
func (s *GroupeService) membreRole(ctx context.Context, groupeID, driverID uint) (models.MembreRole, bool, error) {
	var m models.GroupeMembre
	err := s.db.WithContext(ctx).Where("groupe_id = ? AND chauffeur_id = ?", groupeID, driverID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return m.Role, true, nil
}

// canManage reports whether driverID owns the group or is one of its admins.
func (s *GroupeService) canManage(ctx context.Context, g *models.Groupe, driverID uint) (bool, error) {
	if g.IsOwner(driverID) {
		return true, nil
	}
	role, ok, err := s.membreRole(ctx, g.ID, driverID)
	return ok && role == models.MembreRoleAdmin, err
}

// Create adds a group owned by the actor.
func (s *GroupeService) Create(ctx context.Context, actor *models.Driver, in GroupeInput) (*models.Groupe, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	db := s.db.WithContext(ctx)
	var active int64
	if err := db.Model(&models.Groupe{}).Where("proprietaire_id = ? AND actif = ?", actor.ID, true).Count(&active).Error; err != nil {
		return nil, err
	}
	if active >= models.MaxActiveGroupesPerOwner {
		return nil, conflict(fmt.Sprintf("you cannot own more than %d active groups", models.MaxActiveGroupesPerOwner))
	}
	g := &models.Groupe{
		Nom:            strings.TrimSpace(in.Nom),
		Description:    in.Description,
		ProprietaireID: actor.ID,
		Actif:          true,
	}
	var err error
	for range codeAttempts {
		g.ID = 0
		g.Code = newGroupeCode()
		if err = db.Create(g).Error; !IsUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	s.activity.Log(ctx, actor.ID, models.ActivityGroupeCreated, "Groupe créé : "+g.Nom, map[string]any{"groupe_id": g.ID})
	return g, nil
}

// Get returns a group to one of its members.
func (s *GroupeService) Get(ctx context.Context, actor *models.Driver, id uint) (*models.Groupe, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.HasMembre(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("you are not a member of this group")
	}
	return g, nil
}

// ListMine returns the groups the actor owns or belongs to.
func (s *GroupeService) ListMine(ctx context.Context, actor *models.Driver) ([]models.Groupe, error) {
	var groupes []models.Groupe
	q := inMemberGroupes(s.db.WithContext(ctx).Model(&models.Groupe{}), "id", actor.ID)
	err := q.Preload("Proprietaire").Order("created_at DESC, id DESC").Find(&groupes).Error
	return groupes, err
}

// Update edits the name and description. Owner only.
func (s *GroupeService) Update(ctx context.Context, actor *models.Driver, id uint, in GroupeInput) (*models.Groupe, error) {
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.IsOwner(actor.ID) {
		return nil, forbidden("only the owner can edit the group")
	}
	g.Nom = strings.TrimSpace(in.Nom)
	g.Description = in.Description
	err = s.db.WithContext(ctx).Model(g).Updates(map[string]any{"nom": g.Nom, "description": g.Description}).Error
	return g, err
}

// Delete deactivates the group and expires its pending invitations. Owner only.
func (s *GroupeService) Delete(ctx context.Context, actor *models.Driver, id uint) error {
	g, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !g.IsOwner(actor.ID) {
		return forbidden("only the owner can delete the group")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(g).Update("actif", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.GroupeInvitation{}).
			Where("groupe_id = ? AND status = ?", g.ID, models.InvitationPending).
			Update("status", models.InvitationExpired).Error
	})
}

// RegenerateCode replaces the join code. Owner only.
func (s *GroupeService) RegenerateCode(ctx context.Context, actor *models.Driver, id uint) (*models.Groupe, error) {
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.IsOwner(actor.ID) {
		return nil, forbidden("only the owner can regenerate the code")
	}
	for range codeAttempts {
		code := newGroupeCode()
		err = s.db.WithContext(ctx).Model(g).Update("code", code).Error
		if err == nil {
			g.Code = code
			return g, nil
		}
		if !IsUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, err
}

// JoinByCode adds the actor to the active group holding code.
func (s *GroupeService) JoinByCode(ctx context.Context, actor *models.Driver, code string) (*models.Groupe, error) {
	var g models.Groupe
	err := s.db.WithContext(ctx).Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&g).Error
	if err != nil {
		return nil, lookup(err, "group")
	}
	if !g.Actif {
		return nil, conflict("this group is no longer active")
	}
	member, err := s.HasMembre(ctx, g.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, conflict("already a member")
	}
	m := models.GroupeMembre{GroupeID: g.ID, ChauffeurID: actor.ID, Role: models.MembreRoleMembre, JoinedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, conflict("already a member")
		}
		return nil, err
	}
	s.activity.Log(ctx, actor.ID, models.ActivityGroupeJoined, "Groupe rejoint : "+g.Nom, map[string]any{"groupe_id": g.ID})
	return &g, nil
}

// InviteInput designates the invitee by driver id or by e-mail.
type InviteInput struct {
	ChauffeurID *uint  `json:"chauffeur_id"`
	Email       string `json:"email" validate:"omitempty,email,max=255"`
}

// Invite creates a pending invitation and e-mails its link. Owner or group admin only.
func (s *GroupeService) Invite(ctx context.Context, actor *models.Driver, id uint, in InviteInput) (*models.GroupeInvitation, error) {
	in.Email = normalizeEmail(in.Email)
	if v := validation.Struct(in); !v.Empty() {
		return nil, invalidFields(v)
	}
	if in.ChauffeurID == nil && in.Email == "" {
		return nil, invalidFields(validation.Violations{"chauffeur_id": "required"})
	}
	g, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.Actif {
		return nil, conflict("this group is no longer active")
	}
	ok, err := s.canManage(ctx, g, actor.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, forbidden("only the owner or a group admin can invite")
	}

	db := s.db.WithContext(ctx)
	var target models.Driver
	switch {
	case in.ChauffeurID != nil:
		if err := db.First(&target, *in.ChauffeurID).Error; err != nil {
			return nil, lookup(err, "driver")
		}
	default:
		if err := db.Where("email = ?", in.Email).First(&target).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	inv := &models.GroupeInvitation{
		GroupeID:   g.ID,
		InviteurID: actor.ID,
		Email:      in.Email,
		Token:      uuid.NewString(),
		Status:     models.InvitationPending,
		ExpiresAt:  time.Now().Add(s.invitationTTL),
	}
	if target.ID != 0 {
		inv.ChauffeurID = &target.ID
		inv.Email = target.Email
		member, err := s.HasMembre(ctx, g.ID, target.ID)
		if err != nil {
			return nil, err
		}
		if member {
			return nil, conflict("already a member")
		}
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.GroupeInvitation{}).
			Where("groupe_id = ? AND status = ? AND expires_at > ?", g.ID, models.InvitationPending, time.Now())
		if inv.ChauffeurID != nil {
			q = q.Where("(chauffeur_id = ? OR email = ?)", *inv.ChauffeurID, inv.Email)
		} else {
			q = q.Where("email = ?", inv.Email)
		}
		var pending int64
		if err := q.Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return conflict("an invitation is already pending")
		}
		return tx.Create(inv).Error
	})
	if err != nil {
		return nil, err
	}
	s.sendInvitation(ctx, actor, g, inv)
	return inv, nil
}

// InvitationLink is the URL a driver follows to answer the invitation.
func (s *GroupeService) InvitationLink(token string) string {
	return s.baseURL + "/api/groupes/invitations/" + token
}

func (s *GroupeService) sendInvitation(ctx context.Context, actor *models.Driver, g *models.Groupe, inv *models.GroupeInvitation) {
	if s.mailer == nil || inv.Email == "" {
		return
	}
	msg := notify.InvitationMessage(inv.Email, g.Nom, actor.FullName(), s.InvitationLink(inv.Token))
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn("invitation mail failed", "invitation_id", inv.ID, "error", err)
	}
}

// MyInvitations lists the pending, unexpired invitations addressed to the actor.
func (s *GroupeService) MyInvitations(ctx context.Context, actor *models.Driver) ([]models.GroupeInvitation, error) {
	var invs []models.GroupeInvitation
	err := s.db.WithContext(ctx).
		Preload("Groupe").
		Where("status = ? AND expires_at > ?", models.InvitationPending, time.Now()).
		Where("(chauffeur_id = ? OR (chauffeur_id IS NULL AND email = ?))", actor.ID, normalizeEmail(actor.Email)).
		Order("created_at DESC").
		Find(&invs).Error
	return invs, err
}

func addressedTo(inv *models.GroupeInvitation, actor *models.Driver) bool {
	if inv.ChauffeurID != nil {
		return *inv.ChauffeurID == actor.ID
	}
	return inv.Email != "" && inv.Email == normalizeEmail(actor.Email)
}

// RespondInvitation accepts or rejects an invitation addressed to the actor.
// Answering an expired invitation marks it expired and fails.
func (s *GroupeService) RespondInvitation(ctx context.Context, actor *models.Driver, token string, accept bool) (*models.GroupeInvitation, error) {
	var inv models.GroupeInvitation
	if err := s.db.WithContext(ctx).Preload("Groupe").Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, lookup(err, "invitation")
	}
	if !addressedTo(&inv, actor) {
		return nil, forbidden("this invitation is not addressed to you")
	}
	if inv.Status != models.InvitationPending {
		return nil, conflict("invitation already answered")
	}
	now := time.Now()
	if inv.IsExpired(now) {
		if err := s.db.WithContext(ctx).Model(&inv).Update("status", models.InvitationExpired).Error; err != nil {
			return nil, err
		}
		return nil, conflict("invitation expired")
	}
	status := models.InvitationRejected
	if accept {
		status = models.InvitationAccepted
		if inv.Groupe != nil && !inv.Groupe.Actif {
			return nil, conflict("this group is no longer active")
		}
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GroupeInvitation{}).
			Where("id = ? AND status = ?", inv.ID, models.InvitationPending).
			Updates(map[string]any{"status": status, "responded_at": now, "chauffeur_id": actor.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("invitation already answered")
		}
		if !accept {
			return nil
		}
		member, err := hasMembre(tx, inv.GroupeID, actor.ID)
		if err != nil || member {
			return err
		}
		return tx.Create(&models.GroupeMembre{
			GroupeID:    inv.GroupeID,
			ChauffeurID: actor.ID,
			Role:        models.MembreRoleMembre,
			InvitedByID: &inv.InviteurID,
			JoinedAt:    now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	inv.Status = status
	inv.RespondedAt = &now
	inv.ChauffeurID = &actor.ID
	if accept {
		s.activity.Log(ctx, actor.ID, models.ActivityGroupeJoined, "Invitation acceptée", map[string]any{"groupe_id": inv.GroupeID})
	}
	return &inv, nil
}

// Leave removes the actor's membership. The owner cannot leave.
func (s *GroupeService) Leave(ctx context.Context, actor *models.Driver, id uint) error {
	g, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if g.IsOwner(actor.ID) {
		return conflict("the owner cannot leave the group")
	}
	res := s.db.WithContext(ctx).Where("groupe_id = ? AND chauffeur_id = ?", id, actor.ID).Delete(&models.GroupeMembre{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return conflict("you are not a member of this group")
	}
	return nil
}

// Membre is a member as listed to other members. The owner is reported with role "proprietaire".
type Membre struct {
	Chauffeur *models.Driver `json:"chauffeur"`
	Role      string         `json:"role"`
	JoinedAt  time.Time      `json:"joined_at"`
}

// RoleProprietaire is the listed role of the group owner.
const RoleProprietaire = "proprietaire"

// ListMembres returns the owner followed by the members, oldest first.
func (s *GroupeService) ListMembres(ctx context.Context, actor *models.Driver, id uint) ([]Membre, error) {
	g, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	var rows []models.GroupeMembre
	if err := s.db.WithContext(ctx).Preload("Chauffeur").Where("groupe_id = ?", id).Order("joined_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	membres := make([]Membre, 0, len(rows)+1)
	membres = append(membres, Membre{Chauffeur: g.Proprietaire, Role: RoleProprietaire, JoinedAt: g.CreatedAt})
	for _, r := range rows {
		membres = append(membres, Membre{Chauffeur: r.Chauffeur, Role: string(r.Role), JoinedAt: r.JoinedAt})
	}
	return membres, nil
}

// RemoveMembre removes a member. The owner removes anyone; group admins remove plain members.
func (s *GroupeService) RemoveMembre(ctx context.Context, actor *models.Driver, id, chauffeurID uint) error {
	g, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if g.IsOwner(chauffeurID) {
		return conflict("the owner cannot be removed")
	}
	ok, err := s.canManage(ctx, g, actor.ID)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("only the owner or a group admin can remove members")
	}
	role, found, err := s.membreRole(ctx, id, chauffeurID)
	if err != nil {
		return err
	}
	if !found {
		return notFound("member not found")
	}
	if role == models.MembreRoleAdmin && !g.IsOwner(actor.ID) {
		return forbidden("only the owner can remove a group admin")
	}
	return s.db.WithContext(ctx).Where("groupe_id = ? AND chauffeur_id = ?", id, chauffeurID).Delete(&models.GroupeMembre{}).Error
}

// ChangeMembreRole sets the membership role of a member. Owner only.
func (s *GroupeService) ChangeMembreRole(ctx context.Context, actor *models.Driver, id, chauffeurID uint, role models.MembreRole) error {
	if !role.Valid() {
		return invalidFields(validation.Violations{"role": "invalid_choice"})
	}
	g, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !g.IsOwner(actor.ID) {
		return forbidden("only the owner can change member roles")
	}
	res := s.db.WithContext(ctx).Model(&models.GroupeMembre{}).
		Where("groupe_id = ? AND chauffeur_id = ?", id, chauffeurID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound("member not found")
	}
	return nil
}
