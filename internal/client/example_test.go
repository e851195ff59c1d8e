package client_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"github.com/patric-chuzhbe/students/internal/auth"
	"github.com/patric-chuzhbe/students/internal/avatar"
	"github.com/patric-chuzhbe/students/internal/client"
	"github.com/patric-chuzhbe/students/internal/db/memorystorage"
	"github.com/patric-chuzhbe/students/internal/ipchecker"
	"github.com/patric-chuzhbe/students/internal/models"
	"github.com/patric-chuzhbe/students/internal/router"
	"github.com/patric-chuzhbe/students/internal/service"
)

func newExampleServer() *httptest.Server {
	checker, err := ipchecker.New("")
	if err != nil {
		panic(err)
	}

	return httptest.NewServer(router.New(
		service.New(memorystorage.New(), avatar.New("https://www.gravatar.com/avatar", "identicon")),
		auth.New(auth.NewJWT(
			auth.NewTokenSettings("example-access-signing-key", 15*time.Minute, time.Hour),
			auth.NewTokenSettings("example-refresh-signing-key", time.Hour, time.Hour),
		)),
		checker,
	))
}

func ExampleClient() {
	server := newExampleServer()
	defer server.Close()

	ctx := context.Background()

	c, err := client.New(server.URL)
	if err != nil {
		panic(err)
	}

	if _, err := c.Register(ctx, models.RegisterUser{
		Username: "registrar",
		Email:    "registrar@example.com",
		Password: "password123",
	}); err != nil {
		panic(err)
	}

	if _, err := c.Login(ctx, models.LoginUser{Email: "registrar@example.com", Password: "password123"}); err != nil {
		panic(err)
	}

	student, err := c.AddStudent(ctx, models.AddStudent{
		FullName: "Jane Smith",
		Email:    "jane@example.com",
		Age:      19,
		Courses:  []string{"math", "biology"},
	})
	if err != nil {
		panic(err)
	}

	students, err := c.GetStudents(ctx)
	if err != nil {
		panic(err)
	}

	fmt.Println("Students:", len(students))
	fmt.Println("Name:", student.FullName)
	fmt.Println("Courses:", student.Courses)

	// Output:
	// Students: 1
	// Name: Jane Smith
	// Courses: [math biology]
}

func ExampleAPIError() {
	server := newExampleServer()
	defer server.Close()

	c, err := client.New(server.URL)
	if err != nil {
		panic(err)
	}

	_, err = c.GetStudents(context.Background())
	fmt.Println(err)

	// Output:
	// 403 AuthorizationError: Access token not found. Log in first!
}
