package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/warden/internal/auth"
	"github.com/example/warden/internal/library"
)

type noteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid note id")
		return 0, false
	}
	return id, true
}

func (a *App) HandleListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := a.Store.ListNotes(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (a *App) HandleGetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	n, err := a.Store.GetNote(r.Context(), id)
	if err != nil {
		writeNotFoundOr(w, r, err, "Note not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *App) HandleCreateNote(w http.ResponseWriter, r *http.Request) {
	var in noteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if in.Title == "" || in.Content == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Title and content are required")
		return
	}
	n, err := a.Store.CreateNote(r.Context(), in.Title, in.Content)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (a *App) HandleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var in noteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	n, err := a.Store.UpdateNote(r.Context(), id, in.Title, in.Content)
	if err != nil {
		writeNotFoundOr(w, r, err, "Note not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *App) HandleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	n, err := a.Store.DeleteNote(r.Context(), id)
	if err != nil {
		writeNotFoundOr(w, r, err, "Note not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Note deleted",
		"note":    n,
	})
}

func (a *App) HandleListBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "All Books retrieved",
		"books":   a.Books.All(),
	})
}

// HandleGetBook serves both /isbn/{isbn} and GET /review/{isbn}.
func (a *App) HandleGetBook(w http.ResponseWriter, r *http.Request) {
	b, err := a.Books.ByISBN(mux.Vars(r)["isbn"])
	if err != nil {
		writeNotFoundOr(w, r, err, "Book not found based on ISBN")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *App) HandleBooksByAuthor(w http.ResponseWriter, r *http.Request) {
	books := a.Books.ByAuthor(mux.Vars(r)["author"])
	if len(books) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Book not found based on author")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"books": books})
}

func (a *App) HandleBooksByTitle(w http.ResponseWriter, r *http.Request) {
	books := a.Books.ByTitle(mux.Vars(r)["title"])
	if len(books) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Book not found based on title")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"books": books})
}

func (a *App) HandleSetReview(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Review string `json:"review"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Review == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Review is required")
		return
	}
	id := auth.IdentityFrom(r.Context())
	reviews, err := a.Books.SetReview(mux.Vars(r)["isbn"], id.Username, body.Review)
	if err != nil {
		writeNotFoundOr(w, r, err, "Book not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Review added/updated",
		"reviews": reviews,
	})
}

func (a *App) HandleDeleteReview(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	err := a.Books.DeleteReview(mux.Vars(r)["isbn"], id.Username)
	switch {
	case errors.Is(err, library.ErrNoReview):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Review not found for this user")
	case err != nil:
		writeNotFoundOr(w, r, err, "Book not found")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Review deleted"})
	}
}

func (a *App) HandleListFriends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "All Friends list retrieved",
		"friends": a.Friends.All(),
	})
}

func (a *App) HandleGetFriend(w http.ResponseWriter, r *http.Request) {
	f, err := a.Friends.Get(mux.Vars(r)["email"])
	if err != nil {
		writeNotFoundOr(w, r, err, "Friend not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *App) HandleCreateFriend(w http.ResponseWriter, r *http.Request) {
	var f library.Friend
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	if f.Email == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Email is required")
		return
	}
	a.Friends.Put(f)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": fmt.Sprintf("The user %s has been added!", f.FirstName),
		"friend":  f,
	})
}

func (a *App) HandleUpdateFriend(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]
	var patch library.Friend
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	f, err := a.Friends.Update(email, patch)
	if err != nil {
		writeNotFoundOr(w, r, err, "Unable to find friend!")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("Friend with the email %s updated.", email),
		"friend":  f,
	})
}

func (a *App) HandleDeleteFriend(w http.ResponseWriter, r *http.Request) {
	email := mux.Vars(r)["email"]
	if _, err := a.Friends.Delete(email); err != nil {
		writeNotFoundOr(w, r, err, "Unable to find friend!")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Friend with the email %s deleted.", email),
	})
}
