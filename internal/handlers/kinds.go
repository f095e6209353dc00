package handlers

import (
	"net/http"

	"eventwall/internal/models"
	"eventwall/internal/services"

	"github.com/gin-gonic/gin"
)

type createCheckinRequest struct {
	models.NewActivity
	Config models.CheckinConfig `json:"config"`
}

func (h *HTTPHandler) CreateCheckin(c *gin.Context) {
	var req createCheckinRequest
	if !bind(c, &req) {
		return
	}
	v, err := h.engine.Checkins.Create(req.NewActivity, req.Config)
	respond(c, http.StatusCreated, v, err)
}

func (h *HTTPHandler) UpdateCheckin(c *gin.Context) {
	var patch models.CheckinPatch
	if !bind(c, &patch) {
		return
	}
	v, err := h.engine.Checkins.Update(c.Param("id"), patch)
	respond(c, http.StatusOK, v, err)
}

// SubmitCheckin records a check-in. The verify code is only part of the response
// when a new record was created.
func (h *HTTPHandler) SubmitCheckin(c *gin.Context) {
	var sub services.CheckinSubmission
	if !bind(c, &sub) {
		return
	}
	v, err := h.engine.Checkins.Submit(c.Param("id"), sub)
	respond(c, http.StatusOK, v, err)
}

func (h *HTTPHandler) CheckinStats(c *gin.Context) {
	v, err := h.engine.Checkins.Stats(c.Param("id"))
	respond(c, http.StatusOK, v, err)
}

type createVoteRequest struct {
	models.NewActivity
	Config  models.VoteConfig `json:"config"`
	Options []string          `json:"options"`
}

func (h *HTTPHandler) CreateVote(c *gin.Context) {
	var req createVoteRequest
	if !bind(c, &req) {
		return
	}
	v, err := h.engine.Votes.Create(req.NewActivity, req.Config, req.Options)
	respond(c, http.StatusCreated, v, err)
}

func (h *HTTPHandler) UpdateVote(c *gin.Context) {
	var patch models.VotePatch
	if !bind(c, &patch) {
		return
	}
	v, err := h.engine.Votes.Update(c.Param("id"), patch)
	respond(c, http.StatusOK, v, err)
}

func (h *HTTPHandler) SubmitVote(c *gin.Context) {
	var sub services.VoteSubmission
	if !bind(c, &sub) {
		return
	}
	v, err := h.engine.Votes.Submit(c.Param("id"), sub)
	respond(c, http.StatusOK, v, err)
}

// VoteResults returns the tallies and counters from one consistent read.
func (h *HTTPHandler) VoteResults(c *gin.Context) {
	options, stats, err := h.engine.Votes.Results(c.Param("id"))
	respond(c, http.StatusOK, gin.H{"options": options, "stats": stats}, err)
}

type createLotteryRequest struct {
	models.NewActivity
	Config models.LotteryConfig `json:"config"`
	Prizes []*models.Prize      `json:"prizes"`
}

func (h *HTTPHandler) CreateLottery(c *gin.Context) {
	var req createLotteryRequest
	if !bind(c, &req) {
		return
	}
	v, err := h.engine.Lotteries.Create(req.NewActivity, req.Config, req.Prizes)
	respond(c, http.StatusCreated, v, err)
}

func (h *HTTPHandler) UpdateLottery(c *gin.Context) {
	var patch models.LotteryPatch
	if !bind(c, &patch) {
		return
	}
	v, err := h.engine.Lotteries.Update(c.Param("id"), patch)
	respond(c, http.StatusOK, v, err)
}

// Draw handles one draw. Not winning is still a 200 with win set to false.
func (h *HTTPHandler) Draw(c *gin.Context) {
	var req services.DrawRequest
	if !bindOptional(c, &req) {
		return
	}
	v, err := h.engine.Lotteries.Draw(c.Param("id"), req)
	respond(c, http.StatusOK, v, err)
}

// ResetLottery restores the stock and clears every draw of the lottery.
func (h *HTTPHandler) ResetLottery(c *gin.Context) {
	v, err := h.engine.Lotteries.Reset(c.Param("id"))
	respond(c, http.StatusOK, v, err)
}

func (h *HTTPHandler) Prizes(c *gin.Context) {
	v, err := h.engine.Lotteries.GetPrizes(c.Param("id"))
	respond(c, http.StatusOK, v, err)
}

func (h *HTTPHandler) RemainingDraws(c *gin.Context) {
	left, err := h.engine.Lotteries.RemainingDraws(c.Param("id"), c.Query("phone"))
	respond(c, http.StatusOK, gin.H{"remainingDraws": left}, err)
}

type createFormRequest struct {
	models.NewActivity
	Config models.FormConfig `json:"config"`
}

func (h *HTTPHandler) CreateForm(c *gin.Context) {
	var req createFormRequest
	if !bind(c, &req) {
		return
	}
	v, err := h.engine.Forms.Create(req.NewActivity, req.Config)
	respond(c, http.StatusCreated, v, err)
}

func (h *HTTPHandler) UpdateForm(c *gin.Context) {
	var patch models.FormPatch
	if !bind(c, &patch) {
		return
	}
	v, err := h.engine.Forms.Update(c.Param("id"), patch)
	respond(c, http.StatusOK, v, err)
}

func (h *HTTPHandler) SubmitForm(c *gin.Context) {
	var sub services.FormSubmission
	if !bind(c, &sub) {
		return
	}
	v, err := h.engine.Forms.Submit(c.Param("id"), sub)
	respond(c, http.StatusOK, v, err)
}
