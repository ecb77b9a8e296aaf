package services

import (
	"testing"
	"time"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerIsMemberWithoutRow(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "Roissy"})
	require.NoError(t, err)

	assert.Zero(t, env.count(t, &models.GroupeMembre{}, "groupe_id = ?", g.ID))
	ok, err := env.svc.Groupes.HasMembre(ctx, g.ID, owner.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, g.Code, 8)
	assert.Regexp(t, "^[A-Z0-9]{8}$", g.Code)

	mine, err := env.svc.Groupes.ListMine(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, g.ID, mine[0].ID)
}

func TestJoinByCodeScenario(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	c := env.driver(t, "carol")
	g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "Beauvais"})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(g).Update("code", "ABCD1234").Error)

	_, err = env.svc.Groupes.JoinByCode(ctx, c, "abcd1234")
	require.NoError(t, err)
	var m models.GroupeMembre
	require.NoError(t, env.db.Where("groupe_id = ? AND chauffeur_id = ?", g.ID, c.ID).First(&m).Error)
	assert.Equal(t, models.MembreRoleMembre, m.Role)

	_, err = env.svc.Groupes.JoinByCode(ctx, c, "ABCD1234")
	assertKind(t, err, ErrConflict)
	assert.Equal(t, "already a member", err.Error())
	_, err = env.svc.Groupes.JoinByCode(ctx, owner, "ABCD1234")
	assertKind(t, err, ErrConflict)
	assert.EqualValues(t, 1, env.count(t, &models.GroupeMembre{}, "groupe_id = ?", g.ID))

	_, err = env.svc.Groupes.JoinByCode(ctx, c, "ZZZZ0000")
	assertKind(t, err, ErrNotFound)
}

func TestActiveGroupeLimit(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	var first *models.Groupe
	for i := 0; i < models.MaxActiveGroupesPerOwner; i++ {
		g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "G"})
		require.NoError(t, err)
		if first == nil {
			first = g
		}
	}
	_, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "G6"})
	assertKind(t, err, ErrConflict)

	require.NoError(t, env.svc.Groupes.Delete(ctx, owner, first.ID))
	_, err = env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "G6"})
	require.NoError(t, err)

	c := env.driver(t, "carol")
	_, err = env.svc.Groupes.JoinByCode(ctx, c, first.Code)
	assertKind(t, err, ErrConflict)
}

func TestInvitationFlow(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	bob := env.driver(t, "bob")
	g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "Orly"})
	require.NoError(t, err)

	_, err = env.svc.Groupes.Invite(ctx, bob, g.ID, InviteInput{Email: "x@vtc.test"})
	assertKind(t, err, ErrForbidden)
	_, err = env.svc.Groupes.Invite(ctx, owner, g.ID, InviteInput{})
	assertKind(t, err, ErrValidation)

	inv, err := env.svc.Groupes.Invite(ctx, owner, g.ID, InviteInput{Email: "BOB@vtc.test"})
	require.NoError(t, err)
	require.NotNil(t, inv.ChauffeurID, "e-mail is linked to the existing driver")
	assert.Equal(t, bob.ID, *inv.ChauffeurID)
	assert.Equal(t, models.InvitationPending, inv.Status)
	assert.WithinDuration(t, time.Now().Add(models.InvitationTTL), inv.ExpiresAt, time.Minute)

	sent := env.outbox.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob@vtc.test", sent[0].To)
	assert.Contains(t, sent[0].Text, "https://vtc.test/api/groupes/invitations/"+inv.Token)

	_, err = env.svc.Groupes.Invite(ctx, owner, g.ID, InviteInput{ChauffeurID: &bob.ID})
	assertKind(t, err, ErrConflict)

	mine, err := env.svc.Groupes.MyInvitations(ctx, bob)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, inv.ID, mine[0].ID)

	carol := env.driver(t, "carol")
	_, err = env.svc.Groupes.RespondInvitation(ctx, carol, inv.Token, true)
	assertKind(t, err, ErrForbidden)

	got, err := env.svc.Groupes.RespondInvitation(ctx, bob, inv.Token, true)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationAccepted, got.Status)
	ok, err := env.svc.Groupes.HasMembre(ctx, g.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = env.svc.Groupes.RespondInvitation(ctx, bob, inv.Token, true)
	assertKind(t, err, ErrConflict)

	_, err = env.svc.Groupes.Invite(ctx, owner, g.ID, InviteInput{ChauffeurID: &bob.ID})
	assertKind(t, err, ErrConflict)
	assert.Equal(t, "already a member", err.Error())
}

func TestRejectInvitation(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	bob := env.driver(t, "bob")
	g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "Orly"})
	require.NoError(t, err)
	inv, err := env.svc.Groupes.Invite(ctx, owner, g.ID, InviteInput{ChauffeurID: &bob.ID})
	require.NoError(t, err)

	got, err := env.svc.Groupes.RespondInvitation(ctx, bob, inv.Token, false)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationRejected, got.Status)
	assert.Zero(t, env.count(t, &models.GroupeMembre{}, "groupe_id = ?", g.ID))
}

func TestExpiredInvitationIsMarked(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	bob := env.driver(t, "bob")
	g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "Orly"})
	require.NoError(t, err)
	inv, err := env.svc.Groupes.Invite(ctx, owner, g.ID, InviteInput{ChauffeurID: &bob.ID})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(inv).Update("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err = env.svc.Groupes.RespondInvitation(ctx, bob, inv.Token, true)
	assertKind(t, err, ErrConflict)
	assert.Equal(t, "invitation expired", err.Error())

	var reloaded models.GroupeInvitation
	require.NoError(t, env.db.First(&reloaded, inv.ID).Error)
	assert.Equal(t, models.InvitationExpired, reloaded.Status)
	assert.Zero(t, env.count(t, &models.GroupeMembre{}, "groupe_id = ?", g.ID))
}

func TestMembresManagement(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	bob := env.driver(t, "bob")
	carol := env.driver(t, "carol")
	dave := env.driver(t, "dave")
	g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "Orly"})
	require.NoError(t, err)
	for _, d := range []*models.Driver{bob, carol, dave} {
		_, err = env.svc.Groupes.JoinByCode(ctx, d, g.Code)
		require.NoError(t, err)
	}

	membres, err := env.svc.Groupes.ListMembres(ctx, bob, g.ID)
	require.NoError(t, err)
	require.Len(t, membres, 4)
	assert.Equal(t, RoleProprietaire, membres[0].Role)
	assert.Equal(t, owner.ID, membres[0].Chauffeur.ID)

	err = env.svc.Groupes.ChangeMembreRole(ctx, bob, g.ID, carol.ID, models.MembreRoleAdmin)
	assertKind(t, err, ErrForbidden)
	require.NoError(t, env.svc.Groupes.ChangeMembreRole(ctx, owner, g.ID, bob.ID, models.MembreRoleAdmin))
	err = env.svc.Groupes.ChangeMembreRole(ctx, owner, g.ID, bob.ID, "chef")
	assertKind(t, err, ErrValidation)

	require.NoError(t, env.svc.Groupes.RemoveMembre(ctx, bob, g.ID, carol.ID))
	err = env.svc.Groupes.RemoveMembre(ctx, dave, g.ID, bob.ID)
	assertKind(t, err, ErrForbidden)
	err = env.svc.Groupes.RemoveMembre(ctx, bob, g.ID, owner.ID)
	assertKind(t, err, ErrConflict)

	require.NoError(t, env.svc.Groupes.Leave(ctx, dave, g.ID))
	err = env.svc.Groupes.Leave(ctx, owner, g.ID)
	assertKind(t, err, ErrConflict)

	_, err = env.svc.Groupes.Get(ctx, dave, g.ID)
	assertKind(t, err, ErrForbidden)
	membres, err = env.svc.Groupes.ListMembres(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.Len(t, membres, 2)
}

func TestGroupeOwnerOperations(t *testing.T) {
	env := setup(t)
	owner := env.driver(t, "owner")
	bob := env.driver(t, "bob")
	g, err := env.svc.Groupes.Create(ctx, owner, GroupeInput{Nom: "Orly"})
	require.NoError(t, err)

	_, err = env.svc.Groupes.Update(ctx, bob, g.ID, GroupeInput{Nom: "Volé"})
	assertKind(t, err, ErrForbidden)
	updated, err := env.svc.Groupes.Update(ctx, owner, g.ID, GroupeInput{Nom: "Orly Sud", Description: "Navettes"})
	require.NoError(t, err)
	assert.Equal(t, "Orly Sud", updated.Nom)

	old := g.Code
	regen, err := env.svc.Groupes.RegenerateCode(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old, regen.Code)
	_, err = env.svc.Groupes.JoinByCode(ctx, bob, old)
	assertKind(t, err, ErrNotFound)

	inv, err := env.svc.Groupes.Invite(ctx, owner, g.ID, InviteInput{ChauffeurID: &bob.ID})
	require.NoError(t, err)
	require.NoError(t, env.svc.Groupes.Delete(ctx, owner, g.ID))
	var reloaded models.GroupeInvitation
	require.NoError(t, env.db.First(&reloaded, inv.ID).Error)
	assert.Equal(t, models.InvitationExpired, reloaded.Status)
}
