package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// listTasks returns all background tasks with their schedules and run
// state.
func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.ListTasks())
}

// getTask returns one task by its id.
func (s *Server) getTask(c echo.Context) error {
	task, err := s.sched.GetTask(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, task)
}

// runTask triggers a task outside its schedule, e.g. to force a title
// index rebuild after editing the mapping store.
func (s *Server) runTask(c echo.Context) error {
	taskID := c.Param("id")
	if err := s.sched.RunNow(taskID); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Task started",
		"taskId":  taskID,
	})
}
