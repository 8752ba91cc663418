package domain

import "fmt"

// SubjectKind - тип субъекта, к которому относится лайк
type SubjectKind string

const (
	SubjectPost    SubjectKind = "post"
	SubjectComment SubjectKind = "comment"
	SubjectReply   SubjectKind = "reply"
)

// SubjectRef адресует пост, комментарий или ответ.
// ParentID заполняется только для ответов и передается вызывающим явно.
type SubjectRef struct {
	Kind     SubjectKind
	PostID   string
	ParentID string
	ID       string
}

// PostSubject возвращает ссылку на пост
func PostSubject(postID string) SubjectRef {
	return SubjectRef{Kind: SubjectPost, PostID: postID, ID: postID}
}

// CommentSubject возвращает ссылку на комментарий верхнего уровня
func CommentSubject(postID, commentID string) SubjectRef {
	return SubjectRef{Kind: SubjectComment, PostID: postID, ID: commentID}
}

// ReplySubject возвращает ссылку на ответ
func ReplySubject(postID, parentID, replyID string) SubjectRef {
	return SubjectRef{Kind: SubjectReply, PostID: postID, ParentID: parentID, ID: replyID}
}

// Key - ключ субъекта для реестров лайков и ревизий.
// Идентификаторы комментариев уникальны в пределах поста.
func (s SubjectRef) Key() string {
	if s.Kind == SubjectPost {
		return "post:" + s.PostID
	}
	return fmt.Sprintf("node:%s/%s", s.PostID, s.ID)
}

func (s SubjectRef) String() string {
	switch s.Kind {
	case SubjectReply:
		return fmt.Sprintf("reply %s of comment %s on post %s", s.ID, s.ParentID, s.PostID)
	case SubjectComment:
		return fmt.Sprintf("comment %s on post %s", s.ID, s.PostID)
	default:
		return "post " + s.PostID
	}
}
