package clients

// Repo stores registered clients. Get returns errors.ErrNotFound for unknown ids and
// Insert returns errors.ErrAlreadyExists when the id is taken.
type Repo interface {
	Insert(client *Client) error
	Get(clientID string) (*Client, error)
	Delete(clientID string) error
	List(offset, limit int) ([]*Client, error)
	Close() error
}
