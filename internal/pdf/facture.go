// Package pdf renders invoices as PDF documents.
package pdf

import (
	"fmt"
	"strings"

	"github.com/diewo77/vtc-exchange/internal/models"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var (
	title  = props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}
	label  = props.Text{Size: 9, Style: fontstyle.Bold}
	normal = props.Text{Size: 9}
	right  = props.Text{Size: 9, Align: align.Right}
	total  = props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right}
)

var typeLabels = map[models.FactureType]string{
	models.FacturePrestation:    "Prestation de transport",
	models.FactureSousTraitance: "Sous-traitance",
}

var statusLabels = map[models.FactureStatus]string{
	models.FactureDraft:     "Brouillon",
	models.FactureIssued:    "Émise",
	models.FacturePaid:      "Payée",
	models.FactureCancelled: "Annulée",
}

// Money formats an amount as "1 234,50 €".
func Money(v float64) string {
	s := fmt.Sprintf("%.2f", models.RoundAmount(v))
	intPart, dec, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")
	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(c)
	}
	out := b.String() + "," + dec + " €"
	if neg {
		return "-" + out
	}
	return out
}

func party(heading string, p models.PartySnapshot) []string {
	lines := []string{heading, p.DisplayName()}
	if p.Societe != "" {
		lines = append(lines, p.Prenom+" "+p.Nom)
	}
	if p.Adresse != "" {
		lines = append(lines, p.Adresse)
	}
	if p.SIRET != "" {
		lines = append(lines, "SIRET : "+p.SIRET)
	}
	lines = append(lines, p.Email)
	return lines
}

// Facture renders f as a PDF document.
func Facture(f *models.Facture) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithRightMargin(15).
		WithTopMargin(15).
		Build()
	m := maroto.New(cfg)

	numero := f.NumeroString()
	if numero == "" {
		numero = "(brouillon)"
	}
	m.AddRows(text.NewRow(12, "FACTURE "+numero, title))
	m.AddRow(6,
		text.NewCol(6, typeLabels[f.Type], normal),
		text.NewCol(6, "Statut : "+statusLabels[f.Status], right),
	)
	if f.DateEmission != nil {
		dates := "Émise le " + f.DateEmission.Format("02/01/2006")
		if f.DateEcheance != nil {
			dates += " - échéance " + f.DateEcheance.Format("02/01/2006")
		}
		m.AddRows(text.NewRow(6, dates, normal))
	}

	emetteur := party("Émetteur", f.EmetteurSnapshot)
	destinataire := party("Destinataire", f.DestinataireSnapshot)
	for i := 0; i < max(len(emetteur), len(destinataire)); i++ {
		style := normal
		if i == 0 {
			style = label
		}
		m.AddRows(row.New(5).Add(
			text.NewCol(6, at(emetteur, i), style),
			text.NewCol(6, at(destinataire, i), style),
		))
	}

	if c := f.CourseSnapshot; c != nil {
		m.AddRows(text.NewRow(10, "Course", props.Text{Top: 4, Size: 10, Style: fontstyle.Bold}))
		when := c.DateCourse.Format("02/01/2006")
		if c.Heure != "" {
			when += " " + c.Heure
		}
		m.AddRow(5, text.NewCol(3, "Date", label), text.NewCol(9, when, normal))
		m.AddRow(5, text.NewCol(3, "Départ", label), text.NewCol(9, c.Depart, normal))
		m.AddRow(5, text.NewCol(3, "Arrivée", label), text.NewCol(9, c.Arrivee, normal))
		m.AddRow(5, text.NewCol(3, "Passagers", label), text.NewCol(9, fmt.Sprintf("%d (bagages : %d)", c.Passagers, c.Bagages), normal))
	}

	m.AddRows(row.New(8))
	m.AddRow(6, text.NewCol(8, "Montant HT", right), text.NewCol(4, Money(f.MontantHT), right))
	m.AddRow(6, text.NewCol(8, fmt.Sprintf("TVA %.2f %%", f.TauxTVA), right), text.NewCol(4, Money(f.MontantTVA), right))
	m.AddRow(8, text.NewCol(8, "Total TTC", total), text.NewCol(4, Money(f.MontantTTC), total))

	if f.Notes != "" {
		m.AddRows(text.NewRow(12, f.Notes, props.Text{Top: 4, Size: 8, Style: fontstyle.Italic}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate facture pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func at(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}
