package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validArticle() ArticleForm {
	return ArticleForm{
		Title:      "Hello",
		Content:    strings.Repeat("a", 50),
		CategoryID: "c1",
	}
}

func fieldErrors(t *testing.T, err error) Errors {
	t.Helper()
	var errs Errors
	require.True(t, errors.As(err, &errs), "expected validation errors, got %v", err)
	return errs
}

func TestValidateArticle_TitleBounds(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{"four chars rejected", "abcd", true},
		{"five chars accepted", "abcde", false},
		{"two hundred accepted", strings.Repeat("t", 200), false},
		{"two hundred one rejected", strings.Repeat("t", 201), true},
		{"whitespace padded four rejected", "  abcd  ", true},
		{"multibyte counted as characters", "héllo", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := validArticle()
			form.Title = tt.title
			err := ValidateArticle(form)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			errs := fieldErrors(t, err)
			assert.Contains(t, errs["title"], "characters")
			assert.Len(t, errs, 1)
		})
	}
}

func TestValidateArticle_ContentBounds(t *testing.T) {
	form := validArticle()

	form.Content = strings.Repeat("c", 50)
	assert.NoError(t, ValidateArticle(form))

	form.Content = strings.Repeat("c", 49)
	errs := fieldErrors(t, ValidateArticle(form))
	assert.Equal(t, "Content must be at least 50 characters", errs["content"])

	form.Content = strings.Repeat("c", 10001)
	errs = fieldErrors(t, ValidateArticle(form))
	assert.Equal(t, "Content must be at most 10000 characters", errs["content"])
}

func TestValidateArticle_RequiredFields(t *testing.T) {
	errs := fieldErrors(t, ValidateArticle(ArticleForm{Title: "   "}))

	assert.Equal(t, "Title is required", errs["title"])
	assert.Equal(t, "Content is required", errs["content"])
	assert.Equal(t, "Category is required", errs["categoryId"])
}

func TestValidateArticle_Image(t *testing.T) {
	form := validArticle()

	form.Image = &ImageMeta{Ref: "a.png", ContentType: "image/png", Size: MaxImageSize}
	assert.NoError(t, ValidateArticle(form))

	form.Image = &ImageMeta{Ref: "a.png", ContentType: "image/png", Size: MaxImageSize + 1}
	errs := fieldErrors(t, ValidateArticle(form))
	assert.Equal(t, "Image must be 5MB or smaller", errs["image"])

	form.Image = &ImageMeta{Ref: "a.pdf", ContentType: "application/pdf", Size: 10}
	errs = fieldErrors(t, ValidateArticle(form))
	assert.Contains(t, errs["image"], "image file")
}

func TestValidateImage(t *testing.T) {
	assert.NoError(t, ValidateImage(ImageMeta{ContentType: "image/jpeg", Size: 1024}))

	errs := fieldErrors(t, ValidateImage(ImageMeta{ContentType: "text/plain", Size: 1024}))
	assert.Equal(t, Errors{"image": "Image must be an image file (JPG, PNG)"}, errs)

	errs = fieldErrors(t, ValidateImage(ImageMeta{ContentType: "image/png", Size: MaxImageSize + 1}))
	assert.Equal(t, Errors{"image": "Image must be 5MB or smaller"}, errs)
}

func TestValidateLoginAndRegister(t *testing.T) {
	assert.NoError(t, ValidateLogin(LoginForm{Username: "alice", Password: "secret1"}))

	errs := fieldErrors(t, ValidateLogin(LoginForm{Username: " ", Password: "12345"}))
	assert.Equal(t, "Username is required", errs["username"])
	assert.Equal(t, "Password must be at least 6 characters", errs["password"])

	assert.NoError(t, ValidateRegister(RegisterForm{Username: "bob", Password: "secret1", Role: "User"}))

	errs = fieldErrors(t, ValidateRegister(RegisterForm{Username: "bob", Password: "secret1", Role: "Owner"}))
	assert.Equal(t, "Role must be one of User, Admin", errs["role"])

	errs = fieldErrors(t, ValidateRegister(RegisterForm{Username: "bob", Password: "secret1"}))
	assert.Equal(t, "Role is required", errs["role"])
}

func TestValidateCategory(t *testing.T) {
	assert.NoError(t, ValidateCategory(CategoryForm{Name: "Tech"}))

	errs := fieldErrors(t, ValidateCategory(CategoryForm{Name: " ab "}))
	assert.Equal(t, "Name must be at least 3 characters", errs["name"])
}

func TestMerge(t *testing.T) {
	local := Errors{"title": "Title is required", "content": "Content is required"}
	server := map[string]string{"title": "Title already taken"}

	merged := fieldErrors(t, Merge(local, server))
	assert.Equal(t, "Title already taken", merged["title"])
	assert.Equal(t, "Content is required", merged["content"])

	assert.NoError(t, Merge(nil, nil))

	fromServer := fieldErrors(t, Merge(nil, map[string]string{"categoryId": "unknown category"}))
	assert.Equal(t, "unknown category", fromServer["categoryId"])

	other := errors.New("boom")
	assert.Same(t, other, Merge(other, nil))
}

func TestErrors_ErrorIsStable(t *testing.T) {
	errs := Errors{"b": "second", "a": "first"}
	assert.Equal(t, "validation failed: a: first; b: second", errs.Error())
}
