package catalog

import "time"

// Author is a row in the authors table.
type Author struct {
	ID          string    `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	Name        string    `gorm:"column:name;size:100;not null" json:"name"`
	Email       string    `gorm:"column:email;size:320;not null" json:"email"`
	Biography   string    `gorm:"column:biography;size:1000" json:"biography,omitempty"`
	BirthDate   string    `gorm:"column:birth_date;size:10" json:"birthDate,omitempty"`
	Nationality string    `gorm:"column:nationality;size:50" json:"nationality,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName exposes the table backing author records.
func (Author) TableName() string {
	return "authors"
}

// Book is a row in the books table. AuthorID references the authors table;
// the service verifies the author exists before accepting a write.
type Book struct {
	ID            string    `gorm:"column:id;primaryKey;size:36;not null" json:"id"`
	Title         string    `gorm:"column:title;size:200;not null" json:"title"`
	AuthorID      string    `gorm:"column:author_id;size:36;not null;index" json:"authorId"`
	ISBN          string    `gorm:"column:isbn;size:32;not null" json:"isbn"`
	PublishedYear int       `gorm:"column:published_year" json:"publishedYear,omitempty"`
	Genre         string    `gorm:"column:genre;size:50" json:"genre,omitempty"`
	Pages         int       `gorm:"column:pages" json:"pages,omitempty"`
	Publisher     string    `gorm:"column:publisher;size:100" json:"publisher,omitempty"`
	Language      string    `gorm:"column:language;size:30" json:"language,omitempty"`
	Description   string    `gorm:"column:description;size:2000" json:"description,omitempty"`
	Price         float64   `gorm:"column:price" json:"price,omitempty"`
	InStock       bool      `gorm:"column:in_stock" json:"inStock"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName exposes the table backing book records.
func (Book) TableName() string {
	return "books"
}

// AuthorInput carries the caller-supplied fields for author writes.
type AuthorInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Biography   string `json:"biography"`
	BirthDate   string `json:"birthDate"`
	Nationality string `json:"nationality"`
}

// BookInput carries the caller-supplied fields for book writes.
type BookInput struct {
	Title         string  `json:"title"`
	AuthorID      string  `json:"authorId"`
	ISBN          string  `json:"isbn"`
	PublishedYear int     `json:"publishedYear"`
	Genre         string  `json:"genre"`
	Pages         int     `json:"pages"`
	Publisher     string  `json:"publisher"`
	Language      string  `json:"language"`
	Description   string  `json:"description"`
	Price         float64 `json:"price"`
	InStock       bool    `json:"inStock"`
}
