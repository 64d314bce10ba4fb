package server

import (
	"net/http"

	"github.com/binaryblob/binaryblob/internal/projects"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListTasks(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	index, err := h.tasks.ListTasks(c.Request.Context(), actor)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, taskIndexPayload{
		Tasks:           newTaskPayloads(index.Tasks),
		MostPressing:    newTaskPayloads(index.MostPressing),
		HighestPriority: newTaskPayloads(index.HighestPriority),
		NeedsPolish:     newTaskPayloads(index.NeedsPolish),
		Incomplete:      newTaskPayloads(index.Incomplete),
		Complete:        newTaskPayloads(index.Complete),
	})
}

func (h *httpHandler) handleTaskDetails(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}
	details, err := h.tasks.TaskDetails(c.Request.Context(), actor, taskID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskDetailsPayload(details))
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	values, ok := formValues(c)
	if !ok {
		return
	}
	result, err := h.tasks.CreateTask(c.Request.Context(), actor, values)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTaskUpdatePayload(result))
}

func (h *httpHandler) handleUpdateTask(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}
	values, ok := formValues(c)
	if !ok {
		return
	}
	result, err := h.tasks.UpdateTask(c.Request.Context(), actor, taskID, values)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskUpdatePayload(result))
}

func (h *httpHandler) handleAdvanceTask(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}
	task, err := h.tasks.AdvanceStatus(c.Request.Context(), actor, taskID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskPayload(task))
}

func (h *httpHandler) handleRollbackTask(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}
	task, err := h.tasks.RollbackStatus(c.Request.Context(), actor, taskID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTaskPayload(task))
}

func (h *httpHandler) handleAddTaskNote(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	taskID, ok := pathID(c)
	if !ok {
		return
	}
	values, ok := formValues(c)
	if !ok {
		return
	}
	note, err := h.tasks.AddNote(c.Request.Context(), actor, taskID, values[projects.KeyNote])
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newNotePayload(note))
}

func newTaskUpdatePayload(result projects.UpdateResult) taskUpdatePayload {
	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return taskUpdatePayload{Task: newTaskPayload(result.Task), Warnings: warnings}
}
