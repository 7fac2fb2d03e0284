// Package store holds the application's persisted state: projects, chat
// history, rules, reviews and uploaded-file records. State lives in one JSON
// file loaded at startup and saved on mutation and at shutdown.
package store

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"quill/pkg/utils"
)

// Project kinds.
const (
	KindProse = "prose"
	KindComic = "comic"
)

// Rule modes. Only enforced rules ever reach a prompt.
const (
	ModeEnforce = "enforce"
	ModeWarn    = "warn"
	ModeOff     = "off"
)

type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind"`
	Synopsis      string    `json:"synopsis"`
	Notes         string    `json:"notes"`
	Chapters      int       `json:"chapters,omitempty"`
	TotalPages    int       `json:"total_pages,omitempty"`
	FramesPerPage int       `json:"frames_per_page,omitempty"`
	WordsMin      int       `json:"words_per_chapter_min,omitempty"`
	WordsMax      int       `json:"words_per_chapter_max,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Turn is one question/answer exchange in a project's chat history.
type Turn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type Rule struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Review struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	InputSize  int       `json:"input_size"`
	InputText  string    `json:"input_text"`
	Result     string    `json:"result"`
	CreatedAt  time.Time `json:"created_at"`
	Discussion []Message `json:"discussion,omitempty"`
}

// TempFile records an uploaded document and the index built from it. The
// same record backs both transient uploads and the persistent library.
type TempFile struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Handle   string    `json:"handle"`
	Text     string    `json:"text"`
	Uploaded time.Time `json:"uploaded"`
}

type state struct {
	Projects     map[string]*Project   `json:"projects"`
	History      map[string][]Turn     `json:"history"`
	GlobalRules  []Rule                `json:"global_rules"`
	ProjectRules map[string][]Rule     `json:"project_rules"`
	Reviews      map[string][]*Review  `json:"reviews"`
	TempFiles    map[string][]TempFile `json:"temp_files"`
	LibraryFiles map[string][]TempFile `json:"library_files"`
}

type Store struct {
	mu   sync.RWMutex
	path string
	data state
}

var ErrNotFound = errors.New("not found")

// Open loads the store file, or starts empty if it does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := utils.Load[state](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s.data = data
	if s.data.Projects == nil {
		s.data.Projects = make(map[string]*Project)
	}
	if s.data.History == nil {
		s.data.History = make(map[string][]Turn)
	}
	if s.data.ProjectRules == nil {
		s.data.ProjectRules = make(map[string][]Rule)
	}
	if s.data.Reviews == nil {
		s.data.Reviews = make(map[string][]*Review)
	}
	if s.data.TempFiles == nil {
		s.data.TempFiles = make(map[string][]TempFile)
	}
	if s.data.LibraryFiles == nil {
		s.data.LibraryFiles = make(map[string][]TempFile)
	}
	return s, nil
}

// Save writes the current state to disk.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return utils.Save(s.path, s.data)
}

func (s *Store) PutProject(p *Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.data.Projects[p.ID] = p
}

func (s *Store) Project(id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data.Projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) Projects() []*Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Project, 0, len(s.data.Projects))
	for _, p := range s.data.Projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) SetNotes(projectID, text string) error {
	return s.update(projectID, func(p *Project) { p.Notes = text })
}

func (s *Store) SetSynopsis(projectID, text string) error {
	return s.update(projectID, func(p *Project) { p.Synopsis = text })
}

func (s *Store) update(projectID string, fn func(*Project)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.Projects[projectID]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	return nil
}

// AppendTurn records one completed exchange at the end of a project's
// history. The context parameter exists so the file and Redis backends share
// one interface; this implementation never blocks on it.
func (s *Store) AppendTurn(_ context.Context, projectID, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.History[projectID] = append(s.data.History[projectID], Turn{
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// RecentTurns returns up to n most recent turns, newest first.
func (s *Store) RecentTurns(_ context.Context, projectID string, n int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.data.History[projectID]
	if n > len(turns) {
		n = len(turns)
	}
	out := make([]Turn, 0, n)
	for i := len(turns) - 1; i >= len(turns)-n; i-- {
		out = append(out, turns[i])
	}
	return out, nil
}

func (s *Store) ClearHistory(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.History, projectID)
	return nil
}

// Rules returns the global rules followed by the project-scoped ones.
func (s *Store) Rules(projectID string) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, 0, len(s.data.GlobalRules)+len(s.data.ProjectRules[projectID]))
	out = append(out, s.data.GlobalRules...)
	out = append(out, s.data.ProjectRules[projectID]...)
	return out
}

// AddRule adds a rule; empty projectID means the global tier.
func (s *Store) AddRule(projectID string, r Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = ksuid.New().String()
	}
	if strings.TrimSpace(r.Mode) == "" {
		r.Mode = ModeEnforce
	}
	if projectID == "" {
		s.data.GlobalRules = append(s.data.GlobalRules, r)
		return
	}
	s.data.ProjectRules[projectID] = append(s.data.ProjectRules[projectID], r)
}

func (s *Store) AddReview(projectID string, r *Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.data.Reviews[projectID] = append(s.data.Reviews[projectID], r)
}

func (s *Store) Reviews(projectID string) []*Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs := s.data.Reviews[projectID]
	out := make([]*Review, len(rs))
	for i, r := range rs {
		cp := *r
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) Review(projectID, reviewID string) (*Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.data.Reviews[projectID] {
		if r.ID == reviewID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) UpdateReviewResult(projectID, reviewID, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.data.Reviews[projectID] {
		if r.ID == reviewID {
			r.Result = result
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) AppendReviewMessage(projectID, reviewID string, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.data.Reviews[projectID] {
		if r.ID == reviewID {
			if m.CreatedAt.IsZero() {
				m.CreatedAt = time.Now().UTC()
			}
			r.Discussion = append(r.Discussion, m)
			return nil
		}
	}
	return ErrNotFound
}

func (s *Store) AddTempFile(projectID string, f TempFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Uploaded.IsZero() {
		f.Uploaded = time.Now().UTC()
	}
	s.data.TempFiles[projectID] = append(s.data.TempFiles[projectID], f)
}

func (s *Store) TempFile(projectID, fileID string) (TempFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.data.TempFiles[projectID] {
		if f.ID == fileID {
			return f, nil
		}
	}
	return TempFile{}, ErrNotFound
}

func (s *Store) AddLibraryFile(projectID string, f TempFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Uploaded.IsZero() {
		f.Uploaded = time.Now().UTC()
	}
	s.data.LibraryFiles[projectID] = append(s.data.LibraryFiles[projectID], f)
}

func (s *Store) LibraryFile(projectID, fileID string) (TempFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.data.LibraryFiles[projectID] {
		if f.ID == fileID {
			return f, nil
		}
	}
	return TempFile{}, ErrNotFound
}

func (s *Store) LibraryFiles(projectID string) []TempFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TempFile(nil), s.data.LibraryFiles[projectID]...)
}

// NotesSources lists every project's notes blob keyed by its index handle.
// Used by the startup index verification.
func (s *Store) NotesSources() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data.Projects))
	for id, p := range s.data.Projects {
		out["project_"+id+"/notes"] = p.Notes
	}
	for _, files := range s.data.TempFiles {
		for _, f := range files {
			out[f.Handle] = f.Text
		}
	}
	for _, files := range s.data.LibraryFiles {
		for _, f := range files {
			out[f.Handle] = f.Text
		}
	}
	return out
}
