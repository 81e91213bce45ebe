package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"classcheckin/internal/api"
	"classcheckin/internal/attendance"
	"classcheckin/internal/auth"
	"classcheckin/internal/client"
	"classcheckin/internal/directory"
	"classcheckin/internal/share"
)

func TestClientAgainstServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	users := auth.NewMemoryRepository()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	teacher, err := users.CreateUser(ctx, auth.User{Username: "teacher", Name: "T", Role: auth.RoleTeacher, PasswordHash: string(hash)})
	require.NoError(t, err)
	student, err := users.CreateUser(ctx, auth.User{Username: "student", Name: "S", Role: auth.RoleStudent, PasswordHash: string(hash)})
	require.NoError(t, err)

	courses := directory.NewService(directory.NewMemoryRepository(), users)
	course, err := courses.CreateCourse(ctx, teacher.Principal(), directory.Course{Code: "CS1", Name: "CS"})
	require.NoError(t, err)
	_, err = courses.Enroll(ctx, teacher.Principal(), course.ID, student.ID)
	require.NoError(t, err)

	sessions := attendance.NewService(attendance.NewMemoryRepository(), courses)
	defer sessions.Close()
	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Sessions: sessions,
		Courses:  courses,
		Auth:     auth.NewProvider(users, auth.NewSigner("k", "test", time.Hour)),
		Share:    share.NewRenderer("http://checkin.test/v1/checkin", 64, nil),
	}))
	defer srv.Close()

	tc := client.New(srv.URL)
	_, err = tc.Login(ctx, "teacher", "pw")
	require.NoError(t, err)
	started, err := tc.StartSession(ctx, course.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, started.Share)
	assert.Equal(t, "http://checkin.test/v1/checkin/"+started.Session.Code, started.Share.Link)
	assert.True(t, started.Session.Deadline.Equal(started.Session.StartTime.Add(10*time.Minute)))

	sc := client.New(srv.URL)
	_, err = sc.Login(ctx, "student", "pw")
	require.NoError(t, err)
	res, err := sc.CheckIn(ctx, started.Session.Code)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCheckedIn)
	assert.Equal(t, attendance.RecordPresent, res.Record.Status)
	res, err = sc.CheckIn(ctx, started.Session.Code)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCheckedIn)

	_, err = sc.EndSession(ctx, started.Session.ID)
	assert.True(t, client.IsForbidden(err))

	ended, err := tc.EndSession(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.False(t, ended.AlreadyEnded)
	again, err := tc.EndSession(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyEnded)

	_, err = sc.CheckIn(ctx, started.Session.Code)
	assert.True(t, client.IsEnded(err))

	records, err := tc.ListRecords(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.False(t, records.Provisional)
	require.Len(t, records.Records, 1)

	_, err = tc.ManualCheckin(ctx, started.Session.ID, student.ID, attendance.RecordLate)
	assert.True(t, client.IsEnded(err))

	sum, err := tc.Summary(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Present)
	assert.True(t, sum.Final)

	var last client.Session
	require.NoError(t, tc.Watch(ctx, started.Session.ID, 0, func(s client.Session) { last = s }))
	assert.Equal(t, attendance.StatusEnded, last.Status)

	_, err = tc.GetSession(ctx, "missing")
	assert.True(t, client.IsNotFound(err))
}
