package web

import (
	"net/http"
	"strings"

	"github.com/nancliu/pm-agent/internal/model"
)

type statusRequest struct {
	Status string `json:"status"`
}

type deleteRequest struct {
	Reason *string `json:"reason"`
}

func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	assignee, err := queryID(r, "assignee_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filter := model.Filter{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		AssigneeID: assignee,
		Limit:      limit,
		Offset:     offset,
	}

	tasks, err := s.tasks.List(r.Context(), filter, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var input model.TaskInput
	if err := decodeJSON(r, &input); err != nil {
		s.fail(w, r, err)
		return
	}

	task, err := s.tasks.Create(r.Context(), input, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	task, err := s.tasks.Get(r.Context(), id, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) updateTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var patch model.TaskPatch
	if err := decodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	task, err := s.tasks.Update(r.Context(), id, patch, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) changeStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	task, err := s.tasks.ChangeStatus(r.Context(), id, req.Status, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// deleteTaskHandler takes the reason from a JSON body or the reason query
// parameter.
func (s *Server) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req deleteRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if req.Reason == nil && r.URL.Query().Has("reason") {
		reason := r.URL.Query().Get("reason")
		req.Reason = &reason
	}

	log, err := s.tasks.Delete(r.Context(), id, principal(r), req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) restoreTaskHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	task, err := s.tasks.Restore(r.Context(), id, principal(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, offset, err := pageFromRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	history, err := s.tasks.GetHistory(r.Context(), id, principal(r), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) listDeletedHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	tasks, err := s.tasks.ListDeleted(r.Context(), principal(r), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) listDeletionLogsHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	taskID, err := queryID(r, "task_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	logs, err := s.tasks.ListDeletionLogs(r.Context(), principal(r), taskID, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
