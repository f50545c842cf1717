/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the repository with realistic
  payroll data. Each scenario is a batch script (factory/script.go syntax)
  embedded from api/scenarios/.

AVAILABLE SCENARIOS:
  mixed-staff:   One hourly, one salaried and one commissioned employee
  disbursement:  Direct deposit, mail, hold and paymaster routes plus union dues
  overtime:      Hourly staff with long days

HOW SCENARIOS WORK:
  1. Parse the embedded script
  2. Execute it through the processor (employees, commands, facts)
  3. Payroll is NOT run; call POST /api/payroll/run afterwards

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "mixed-staff"}

ADDING NEW SCENARIOS:
  1. Add api/scenarios/<id>.txt
  2. Add an entry to the scenarios slice

NOTE:
  Scenarios add to whatever is stored. Loading one twice fails on the
  duplicate employee ids and leaves the first load in place.
*/
package api

import (
	"bytes"
	"embed"
	"fmt"
	"net/http"

	"github.com/warp/payroll-engine/factory"
)

//go:embed scenarios/*.txt
var scenarioFiles embed.FS

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// LoadScenarioResponse reports what a load executed.
type LoadScenarioResponse struct {
	Scenario string `json:"scenario"`
	Executed int    `json:"executed"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "mixed-staff",
		Name:        "Mixed Staff",
		Description: "One employee on each compensation scheme with a month of time cards and sales",
	},
	{
		ID:          "disbursement",
		Name:        "Disbursement Routes",
		Description: "Direct deposit, mailed cheque, held pay and paymaster pickup, with union dues",
	},
	{
		ID:          "overtime",
		Name:        "Overtime",
		Description: "Hourly staff working past eight hours a day",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario executes a predefined scenario script.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	script, err := h.scenarioScript(req.ScenarioID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown scenario", err)
		return
	}

	target := factory.Target{Processor: h.Processor, Runner: h.Runner}
	res, err := script.Exec(r.Context(), target, factory.ExecOptions{})
	if err != nil {
		writeDomainError(w, "failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, LoadScenarioResponse{Scenario: req.ScenarioID, Executed: res.Executed})
}

func (h *Handler) scenarioScript(id string) (factory.Script, error) {
	known := false
	for _, s := range scenarios {
		if s.ID == id {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("no scenario %q", id)
	}

	data, err := scenarioFiles.ReadFile("scenarios/" + id + ".txt")
	if err != nil {
		return nil, err
	}
	return h.Factory.ParseScript(bytes.NewReader(data))
}
