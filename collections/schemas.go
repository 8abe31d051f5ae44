package collections

// URLPattern accepts bare or http(s) URLs for registration links.
const URLPattern = `^(https?://)?([\da-z.-]+)\.([a-z.]{2,6})([/\w .-]*)*/?$`

var statusEnum = []EnumValue{
	{Key: "draft", Label: "Draft"},
	{Key: "published", Label: "Published"},
	{Key: "archived", Label: "Archived"},
}

var Articles = Collection{
	ID:           "articles",
	Name:         "Articles",
	SingularName: "Article",
	Path:         "articles",
	Properties: []Property{
		{Key: "title", Name: "Title", DataType: String, Required: true},
		{Key: "titleEn", Name: "English title", DataType: String, Required: true},
		{
			Key: "cover", Name: "Cover image", DataType: String,
			Required: true, RequiredMessage: "Please upload a cover image",
			Storage: &Storage{
				Path:          "articles/covers",
				AcceptedFiles: []string{"image/*"},
				CacheControl:  "public,max-age=86400",
				StoreURL:      true,
				MaxImageWidth: 1600,
			},
		},
		{Key: "content", Name: "Content", DataType: String, Required: true, RichText: true},
		{
			Key: "category", Name: "Category", DataType: String, Required: true,
			Enum: []EnumValue{
				{Key: "saturday", Label: "Saturday Program"},
				{Key: "afterSchool", Label: "After-school Program"},
				{Key: "summerCamp", Label: "Summer Camp Program"},
				{Key: "satAct", Label: "Online SAT/ACT Training"},
				{Key: "news", Label: "News"},
				{Key: "notice", Label: "Announcements"},
			},
		},
		{Key: "isFull", Name: "Fully booked", DataType: Boolean, Default: false},
		{Key: "isAirline", Name: "Airfare included", DataType: Boolean, Default: false},
		{
			Key: "publishDate", Name: "Publish date", DataType: Date,
			Required: true, RequiredMessage: "Please choose a publish date",
			Description: "Date the article is published",
		},
		{
			Key: "status", Name: "Status", DataType: String,
			Required: true, RequiredMessage: "Please choose an article status",
			Description: "Publication status of the article",
			Enum:        statusEnum,
		},
		{
			Key: "showOnHome", Name: "Show on home page", DataType: Boolean, Default: false,
			Description: "Whether the article is listed on the home page",
		},
		{
			Key: "registrationLink", Name: "Registration link", DataType: String,
			Description:    "Registration link for the course or event (optional)",
			Matches:        URLPattern,
			MatchesMessage: "Please enter a valid URL",
		},
		{
			Key: "locations", Name: "Locations", DataType: Array,
			Description: "Where the course or event takes place",
			Of: &Property{
				DataType: Map,
				Properties: []Property{
					{Key: "name", Name: "Location name", DataType: String, Required: true},
					{Key: "address", Name: "Address", DataType: String, Required: true},
					{Key: "lat", Name: "Latitude", DataType: Number, Required: true, Min: bound(-90), Max: bound(90)},
					{Key: "lng", Name: "Longitude", DataType: Number, Required: true, Min: bound(-180), Max: bound(180)},
				},
			},
		},
	},
}

var Attendance = Collection{
	ID:   "attendance",
	Name: "Attendance",
	Path: "attendance",
	Properties: []Property{
		{Key: "class", Name: "Class", DataType: Reference, ReferencePath: "classes", Required: true},
		{Key: "date", Name: "Date", DataType: Date, Required: true},
		{
			Key: "records", Name: "Records", DataType: Array,
			Of: &Property{
				DataType: Map,
				Properties: []Property{
					{Key: "student", Name: "Student", DataType: Reference, ReferencePath: "users"},
					{
						Key: "status", Name: "Status", DataType: String,
						Enum: []EnumValue{
							{Key: "present", Label: "Present"},
							{Key: "absent", Label: "Absent"},
							{Key: "late", Label: "Late"},
							{Key: "leave", Label: "On leave"},
						},
					},
				},
			},
		},
	},
}

var Banners = Collection{
	ID:           "banners",
	Name:         "Banners",
	SingularName: "Banner",
	Path:         "banners",
	Properties: []Property{
		{Key: "title", Name: "Title", DataType: String, Required: true},
		{
			Key: "image", Name: "Image", DataType: String, Required: true,
			Storage: &Storage{
				Path:          "banners",
				AcceptedFiles: []string{"image/*"},
				CacheControl:  "max-age=1000000",
				StoreURL:      true,
				MaxImageWidth: 2400,
			},
		},
		{Key: "link", Name: "Link", DataType: String},
		{Key: "order", Name: "Order", DataType: Number, Required: true, Description: "Lower numbers come first"},
		{Key: "active", Name: "Active", DataType: Boolean, Default: true},
		{Key: "startDate", Name: "Start date", DataType: Date},
		{Key: "endDate", Name: "End date", DataType: Date},
	},
}

var Classes = Collection{
	ID:   "classes",
	Name: "Classes",
	Path: "classes",
	Properties: []Property{
		{Key: "className", Name: "Class name", DataType: String, Required: true},
		{Key: "teacher", Name: "Homeroom teacher", DataType: Reference, ReferencePath: "users"},
		{
			Key: "students", Name: "Students", DataType: Array,
			Of: &Property{DataType: Reference, ReferencePath: "users"},
		},
		{
			Key: "schedule", Name: "Schedule", DataType: Array,
			Of: &Property{
				DataType: Map,
				Properties: []Property{
					{
						Key: "weekday", Name: "Weekday", DataType: String,
						Enum: []EnumValue{
							{Key: "monday", Label: "Monday"},
							{Key: "tuesday", Label: "Tuesday"},
							{Key: "wednesday", Label: "Wednesday"},
							{Key: "thursday", Label: "Thursday"},
							{Key: "friday", Label: "Friday"},
						},
					},
					{Key: "course", Name: "Course", DataType: Reference, ReferencePath: "courses"},
				},
			},
		},
	},
}

var Courses = Collection{
	ID:   "courses",
	Name: "Courses",
	Path: "courses",
	Properties: []Property{
		{Key: "name", Name: "Course name", DataType: String, Required: true},
		{Key: "description", Name: "Description", DataType: String, Required: true, Multiline: true},
		{Key: "teacher", Name: "Teacher", DataType: Reference, ReferencePath: "users", Required: true},
		{Key: "duration", Name: "Lessons", DataType: Number, Required: true, Min: bound(1), Max: bound(100)},
		{
			Key: "status", Name: "Status", DataType: String, Required: true,
			Enum: []EnumValue{
				{Key: "active", Label: "In progress"},
				{Key: "upcoming", Label: "Upcoming"},
				{Key: "completed", Label: "Completed"},
				{Key: "cancelled", Label: "Cancelled"},
			},
		},
		{
			Key: "category", Name: "Category", DataType: String, Required: true,
			Enum: []EnumValue{
				{Key: "math", Label: "Math"},
				{Key: "english", Label: "English"},
				{Key: "science", Label: "Science"},
				{Key: "history", Label: "History"},
				{Key: "literature", Label: "Chinese literature"},
				{Key: "other", Label: "Other"},
			},
		},
		{
			Key: "materials", Name: "Materials", DataType: Array,
			Of: &Property{
				DataType: String,
				Storage: &Storage{
					Path:          "course_materials",
					AcceptedFiles: []string{"application/pdf", "image/*", "video/*"},
				},
			},
		},
	},
}

var Gallery = Collection{
	ID:   "gallery",
	Name: "Gallery",
	Path: "gallery",
	Properties: []Property{
		{Key: "title", Name: "Title", DataType: String, Required: true},
		{Key: "titleEn", Name: "English title", DataType: String, Required: true},
		{
			Key: "type", Name: "Type", DataType: String, Required: true,
			Enum: []EnumValue{{Key: "image", Label: "Image"}, {Key: "video", Label: "Video"}},
		},
		{
			Key: "imageUrl", Name: "Image", DataType: String,
			Storage: &Storage{
				Path:          "gallery/images",
				AcceptedFiles: []string{"image/*"},
				CacheControl:  "public,max-age=86400",
				StoreURL:      true,
				MaxImageWidth: 2400,
			},
		},
		{
			Key: "videoUrl", Name: "Video", DataType: String,
			Description: "MP4, WebM and other video formats",
			Storage: &Storage{
				Path:          "gallery/videos",
				AcceptedFiles: []string{"video/*"},
				CacheControl:  "public,max-age=86400",
				StoreURL:      true,
			},
		},
		{Key: "order", Name: "Order", DataType: Number, Required: true, Description: "Lower numbers come first"},
		{
			Key: "status", Name: "Status", DataType: String,
			Required: true, RequiredMessage: "Please choose a status",
			Enum: statusEnum,
		},
		{Key: "createDate", Name: "Created", DataType: Date, Required: true, DefaultNow: true, Disabled: true},
	},
}

var Testimonials = Collection{
	ID:   "testimonials",
	Name: "Testimonials",
	Path: "testimonials",
	Properties: []Property{
		{
			Key: "body", Name: "Testimonial", DataType: String, Multiline: true,
			Required: true, RequiredMessage: "Please enter the testimonial",
		},
		{
			Key: "author", Name: "Author", DataType: String,
			Required: true, RequiredMessage: "Please enter the author's name",
		},
		{
			Key: "date", Name: "Date", DataType: String,
			Required: true, RequiredMessage: "Please enter the testimonial date",
			Description: "When the testimonial was given",
		},
	},
}

var Users = Collection{
	ID:   "users",
	Name: "Users",
	Path: "users",
	Properties: []Property{
		{Key: "username", Name: "Username", DataType: String, Required: true},
		{
			Key: "role", Name: "Role", DataType: String, Required: true,
			Enum: []EnumValue{
				{Key: "student", Label: "Student"},
				{Key: "teacher", Label: "Teacher"},
				{Key: "admin", Label: "Administrator"},
			},
		},
		{Key: "email", Name: "Email", DataType: String, Required: true, Rules: "email"},
		{
			Key: "status", Name: "Status", DataType: String,
			Enum: []EnumValue{
				{Key: "active", Label: "Active"},
				{Key: "inactive", Label: "Inactive"},
				{Key: "blocked", Label: "Blocked"},
			},
		},
	},
}
