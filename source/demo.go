package main

import (
	"context"
	funnelreferences "crm/source/entities/funnel_references"
	"crm/source/entities/kanban"
	"crm/source/schemas"
	"fmt"
	"log"
	"time"
)

var demoStages = []schemas.FunnelStage{
	{ID: "NEW", Name: "Novo"},
	{ID: "CONTACTED", Name: "Contatado"},
	{ID: "PROPOSAL", Name: "Proposta"},
	{ID: "WON", Name: "Ganho"},
}

var demoSegments = []string{"esporte", "corporativo", "eventos"}

// seedDemo fills the in-memory stores with one sales funnel and a dozen
// opportunities spread over its stages.
func seedDemo(ctx context.Context, deps *dependencies) error {
	funnel := schemas.Funnel{Name: "Vendas", Type: "sales", Stages: demoStages, CreatedAt: time.Now().UTC()}
	if err := deps.funnels.InsertOne(ctx, &funnel); err != nil {
		return err
	}

	opportunities, ok := deps.opportunities.(*kanban.MemoryOpportunities)
	if !ok {
		return fmt.Errorf("demo data needs the in-memory opportunities")
	}

	transitions := funnelreferences.NewService(deps.references, funnelreferences.WithFunnels(deps.funnels))
	for i := range 12 {
		opportunityID := opportunities.Put(schemas.Opportunity{
			Name:       fmt.Sprintf("Oportunidade %02d", i+1),
			Identifier: fmt.Sprintf("OP-%04d", i+1),
			Type:       "b2b",
			Segment:    demoSegments[i%len(demoSegments)],
			CreatedAt:  time.Now().UTC().Add(-time.Duration(12-i) * time.Hour),
		})

		reference, err := transitions.EnterFunnel(ctx, funnelreferences.EnterFunnelInput{
			OpportunityID: opportunityID,
			FunnelID:      funnel.ID,
		}, 0)
		if err != nil {
			return err
		}

		target := demoStages[i%len(demoStages)].ID
		if target != reference.CurrentStageID {
			if _, err := transitions.MoveToStage(ctx, reference.ID, reference.CurrentStageID, target, 0); err != nil {
				return err
			}
		}
	}

	log.Printf("[Demo] Funil %s criado com %d oportunidades", funnel.ID.Hex(), 12)
	return nil
}
