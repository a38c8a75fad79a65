package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	appprediction "github.com/turtacn/ache-predictor/internal/application/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
)

const maxSimilar = 100

// MoleculeHandler serves per-molecule lookups across runs.
type MoleculeHandler struct {
	svc    appprediction.Service
	logger logging.Logger
}

func NewMoleculeHandler(svc appprediction.Service, logger logging.Logger) *MoleculeHandler {
	return &MoleculeHandler{svc: svc, logger: logger}
}

// Similar handles GET /api/v1/molecules/:id/similar?k=.
func (h *MoleculeHandler) Similar(c *gin.Context) {
	k := 0
	if raw := c.Query("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxSimilar {
			badRequest(c, "k must be between 1 and "+strconv.Itoa(maxSimilar))
			return
		}
		k = v
	}
	id := c.Param("id")
	out, err := h.svc.SimilarMolecules(c.Request.Context(), id, k)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"molecule_id": id, "neighbours": out})
}

// History handles GET /api/v1/molecules/:id/history.
func (h *MoleculeHandler) History(c *gin.Context) {
	id := c.Param("id")
	out, err := h.svc.MoleculeHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"molecule_id": id, "history": out})
}

//Personal.AI order the ending
