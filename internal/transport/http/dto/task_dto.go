package dto

import (
	"net/url"
	"strings"
	"time"

	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/model"
)

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type CreateTaskRequest struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Author    string `json:"author,omitempty"`
	Quality   string `json:"quality,omitempty"`
}

func (r *CreateTaskRequest) Validate() []string {
	return validateURL(r.URL)
}

// Media builds the media reference. A missing title falls back to the last
// path segment of the URL.
func (r *CreateTaskRequest) Media() model.MediaRef {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = titleFromURL(r.URL)
	}
	return model.MediaRef{
		Title:     title,
		Platform:  strings.TrimSpace(r.Platform),
		Thumbnail: r.Thumbnail,
		Author:    r.Author,
		URL:       strings.TrimSpace(r.URL),
	}
}

type CreatePlaylistRequest struct {
	URL     string `json:"url"`
	Quality string `json:"quality,omitempty"`
	Start   bool   `json:"start"`
}

func (r *CreatePlaylistRequest) Validate() []string {
	return validateURL(r.URL)
}

type PlaylistResponse struct {
	Playlist *model.Playlist `json:"playlist"`
	Tasks    []TaskResponse  `json:"tasks,omitempty"`
	Failed   []string        `json:"failed,omitempty"`
}

// TaskResponse is a task plus the human readable fields a client displays
type TaskResponse struct {
	model.DownloadTask
	DisplayTitle string `json:"display_title"`
	ETA          string `json:"eta"`
	Speed        string `json:"speed"`
	Downloaded   string `json:"downloaded"`
	Total        string `json:"total"`
	Elapsed      string `json:"elapsed,omitempty"`
}

func TaskToResponse(task model.DownloadTask) TaskResponse {
	resp := TaskResponse{
		DownloadTask: task,
		DisplayTitle: task.GetDisplayTitle(),
		ETA:          task.GetETAString(),
		Speed:        model.FormatSpeed(task.SpeedBps),
		Downloaded:   model.FormatFileSize(task.DownloadedBytes),
		Total:        model.FormatFileSize(task.TotalBytes),
	}
	if !task.StartedAt.IsZero() {
		end := task.FinishedAt
		if end.IsZero() {
			end = time.Now()
		}
		resp.Elapsed = model.FormatDuration(end.Sub(task.StartedAt))
	}
	return resp
}

func TasksToResponse(tasks []model.DownloadTask) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskToResponse(t))
	}
	return out
}

type TaskListResponse struct {
	Filter download.Filter `json:"filter"`
	Tasks  []TaskResponse  `json:"tasks"`
	Counts download.Counts `json:"counts"`
}

type QualitiesResponse struct {
	Default   string   `json:"default"`
	Qualities []string `json:"qualities"`
}

func validateURL(raw string) []string {
	var errors []string
	raw = strings.TrimSpace(raw)
	if raw == "" {
		errors = append(errors, "url is required")
		return errors
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, "url must be an absolute http(s) URL")
	}
	return errors
}

func titleFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	name := segments[len(segments)-1]
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name
}
