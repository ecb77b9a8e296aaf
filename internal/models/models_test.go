package models

import (
	"errors"
	"testing"
	"time"
)

func TestFacture_ComputeAmounts(t *testing.T) {
	tests := []struct {
		name    string
		ht      float64
		rate    float64
		wantTTC float64
		wantTVA float64
	}{
		{"20% on €100", 100, 20, 120, 20},
		{"10% on €33.33", 33.33, 10, 36.66, 3.33},
		{"0% on €50", 50, 0, 50, 0},
		{"5.5% on €19.99", 19.99, 5.5, 21.09, 1.1},
		{"HT rounded to cents", 10.004, 20, 12, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Facture{}
			f.TauxTVA = tt.rate
			f.SetMontantHT(tt.ht)
			if diff := f.MontantTTC - tt.wantTTC; diff > 0.001 || diff < -0.001 {
				t.Errorf("MontantTTC = %f, want %f", f.MontantTTC, tt.wantTTC)
			}
			if diff := f.MontantTVA - tt.wantTVA; diff > 0.001 || diff < -0.001 {
				t.Errorf("MontantTVA = %f, want %f", f.MontantTVA, tt.wantTVA)
			}
		})
	}
}

func TestFacture_SetTauxTVA(t *testing.T) {
	f := &Facture{MontantHT: 100}
	f.SetTauxTVA(DefaultTauxTVA)
	if f.MontantTTC != 120 {
		t.Errorf("MontantTTC = %f, want 120", f.MontantTTC)
	}
	if !(&Facture{Status: FactureDraft}).IsEditable() {
		t.Error("draft should be editable")
	}
	if (&Facture{Status: FactureIssued}).IsEditable() {
		t.Error("issued invoice should not be editable")
	}
}

func TestFormatNumero(t *testing.T) {
	if got := FormatNumero(2026, 42); got != "FAC-2026-000042" {
		t.Errorf("FormatNumero() = %q", got)
	}
	if got := (&Facture{}).NumeroString(); got != "" {
		t.Errorf("draft NumeroString() = %q, want empty", got)
	}
}

func TestRide_CheckVisibility(t *testing.T) {
	gid := uint(7)
	tests := []struct {
		name string
		ride Ride
		want error
	}{
		{"public without groupe", Ride{Visibility: VisibilityPublic}, nil},
		{"public with groupe", Ride{Visibility: VisibilityPublic, GroupeID: &gid}, ErrGroupeNotAllowed},
		{"groupe with groupe", Ride{Visibility: VisibilityGroupe, GroupeID: &gid}, nil},
		{"groupe without groupe", Ride{Visibility: VisibilityGroupe}, ErrGroupeRequired},
		{"unknown", Ride{Visibility: "prive"}, ErrVisibility},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ride.CheckVisibility(); !errors.Is(got, tt.want) {
				t.Errorf("CheckVisibility() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRide_Participants(t *testing.T) {
	acc := uint(2)
	r := &Ride{VendeurID: 1}
	if r.IsParticipant(2) {
		t.Error("no accepteur yet")
	}
	r.AccepteurID = &acc
	if !r.IsParticipant(1) || !r.IsParticipant(2) || r.IsParticipant(3) {
		t.Error("participants should be vendeur and accepteur")
	}
	if r.IsAccepteur(1) {
		t.Error("vendeur is not the accepteur")
	}
}

func TestExecutionStatus_Rank(t *testing.T) {
	order := []ExecutionStatus{ExecutionNone, ExecutionDepart, ExecutionPriseEnCharge, ExecutionTerminee}
	for i, s := range order {
		if s.Rank() != i {
			t.Errorf("%q.Rank() = %d, want %d", s, s.Rank(), i)
		}
	}
	if ExecutionStatus("arrivee").Rank() != -1 {
		t.Error("unknown milestone should rank -1")
	}
}

func TestNormalizePair(t *testing.T) {
	a, b := NormalizePair(9, 3)
	if a != 3 || b != 9 {
		t.Errorf("NormalizePair(9, 3) = %d, %d", a, b)
	}
	c := &Conversation{ParticipantAID: 3, ParticipantBID: 9}
	if c.OtherParticipant(3) != 9 || c.OtherParticipant(9) != 3 {
		t.Error("OtherParticipant mismatch")
	}
	if c.HasParticipant(4) {
		t.Error("4 is not a participant")
	}
}

func TestDocument_IsShared(t *testing.T) {
	now := time.Now()
	token := "abc"
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)
	if (&Document{}).IsShared(now) {
		t.Error("no token")
	}
	if !(&Document{ShareToken: &token, ShareExpiresAt: &later}).IsShared(now) {
		t.Error("link should be usable")
	}
	if (&Document{ShareToken: &token, ShareExpiresAt: &earlier}).IsShared(now) {
		t.Error("link expired")
	}
}

func TestAccessRights_Allows(t *testing.T) {
	rights := AccessRights{ModuleRides: {"read", "write"}}
	if !rights.Allows(ModuleRides, "write") {
		t.Error("rides:write should be allowed")
	}
	if rights.Allows(ModuleRides, "delete") || rights.Allows(ModuleRBAC, "read") {
		t.Error("unexpected grant")
	}
}

func TestDriver_Roles(t *testing.T) {
	d := &Driver{Prenom: "Alice", Nom: "Martin", Roles: []Role{{Name: RoleChauffeur}}}
	if d.FullName() != "Alice Martin" {
		t.Errorf("FullName() = %q", d.FullName())
	}
	if d.IsProtected() {
		t.Error("chauffeur is not protected")
	}
	d.Roles = append(d.Roles, Role{Name: RoleAdmin})
	if !d.IsProtected() {
		t.Error("admin is protected")
	}
	if DriverStatus("archived").Valid() {
		t.Error("unknown status")
	}
}
