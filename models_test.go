package main

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestUserSetPassword(t *testing.T) {
	user := &User{}
	password := "testpassword123"

	err := user.SetPassword(password)
	if err != nil {
		t.Fatalf("Expected no error setting password, got: %v", err)
	}

	if user.PasswordHash == "" {
		t.Error("Expected password hash to be set")
	}

	if user.PasswordHash == password {
		t.Error("Password hash should not equal plaintext password")
	}

	// Verify the hash is valid bcrypt
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		t.Errorf("Password hash verification failed: %v", err)
	}
}

func TestUserCheckPassword(t *testing.T) {
	user := &User{}
	password := "testpassword123"
	wrongPassword := "wrongpassword"

	// Set password first
	err := user.SetPassword(password)
	if err != nil {
		t.Fatalf("Failed to set password: %v", err)
	}

	// Test correct password
	if !user.CheckPassword(password) {
		t.Error("Expected correct password to return true")
	}

	// Test wrong password
	if user.CheckPassword(wrongPassword) {
		t.Error("Expected wrong password to return false")
	}

	// Test empty password
	if user.CheckPassword("") {
		t.Error("Expected empty password to return false")
	}
}

func TestAnnotationOrderedContent(t *testing.T) {
	annotation := &Annotation{
		Content: []byte(`{"publications":[],"personal_info":{"name":"A"}}`),
	}

	got := annotation.OrderedContent(defaultFieldOrder)
	want := `{"personal_info":{"name":"A"},"publications":[]}`
	if string(got) != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestAnnotationOrderedContentNonObject(t *testing.T) {
	annotation := &Annotation{Content: []byte(`[1,2]`)}

	got := annotation.OrderedContent(defaultFieldOrder)
	if string(got) != `[1,2]` {
		t.Errorf("Expected non-object content unchanged, got %s", got)
	}
}
